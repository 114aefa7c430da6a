package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectflow/backend/pkg/models"
)

func validSpec() *models.WorkflowSpec {
	return &models.WorkflowSpec{
		Name: "Sales",
		Type: models.WorkflowTypeSales,
		Stages: []models.Stage{
			{Key: "lead", Name: "Lead"},
			{Key: "won", Name: "Won", Position: 1},
		},
		TerminalStages: []string{"won"},
	}
}

func TestValidateWorkflow(t *testing.T) {
	v := MustNew()
	assert.NoError(t, v.ValidateWorkflow(validSpec()))

	tests := []struct {
		name   string
		mutate func(*models.WorkflowSpec)
		want   string
	}{
		{"empty name", func(s *models.WorkflowSpec) { s.Name = "" }, "/name"},
		{"blank name", func(s *models.WorkflowSpec) { s.Name = "   " }, "/name"},
		{"no stages", func(s *models.WorkflowSpec) { s.Stages = nil }, "/stages"},
		{"empty stage key", func(s *models.WorkflowSpec) { s.Stages[0].Key = "" }, "/stages/0/key"},
		{"duplicate stage key", func(s *models.WorkflowSpec) { s.Stages[1].Key = "lead" }, "duplicate stage key"},
		{"unknown terminal stage", func(s *models.WorkflowSpec) { s.TerminalStages = []string{"lost"} }, "unknown stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)

			err := v.ValidateWorkflow(spec)
			require.Error(t, err)
			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Violations[0], tt.want)
		})
	}
}

func TestValidateRule(t *testing.T) {
	v := MustNew()

	ok := &models.RuleSpec{
		Name:       "Overdue",
		RuleType:   models.RuleTypeNotification,
		Conditions: map[string]interface{}{},
	}
	assert.NoError(t, v.ValidateRule(ok))

	missingConditions := *ok
	missingConditions.Conditions = nil
	assert.Error(t, v.ValidateRule(&missingConditions))

	missingType := *ok
	missingType.RuleType = ""
	assert.Error(t, v.ValidateRule(&missingType))

	assert.Error(t, v.ValidateRule(nil))
}
