package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"projectflow/backend/internal/events"
	"projectflow/backend/pkg/models"
)

func overdueRule() *models.RuleSpec {
	return &models.RuleSpec{
		Name:       "Task overdue",
		RuleType:   models.RuleTypeNotification,
		Conditions: map[string]interface{}{"task_status": "overdue"},
		Actions:    map[string]interface{}{"notify": "assignee"},
	}
}

func TestRuleService_CRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rule, err := f.rules.CreateRule(ctx, overdueRule())
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.IsActive)

	got, err := f.rules.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule, got)

	spec := overdueRule()
	spec.Name = "Task overdue (manager)"
	spec.IsActive = boolPtr(false)
	updated, err := f.rules.UpdateRule(ctx, rule.ID, spec)
	require.NoError(t, err)
	assert.Equal(t, "Task overdue (manager)", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, rule.CreatedAt, updated.CreatedAt)

	require.NoError(t, f.rules.DeleteRule(ctx, rule.ID))
	_, err = f.rules.GetRule(ctx, rule.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.rules.DeleteRule(ctx, rule.ID), ErrNotFound)
}

func TestRuleService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noType := overdueRule()
	noType.RuleType = ""
	_, err := f.rules.CreateRule(ctx, noType)
	assert.ErrorIs(t, err, ErrValidation)

	noConditions := overdueRule()
	noConditions.Conditions = nil
	_, err = f.rules.CreateRule(ctx, noConditions)
	assert.ErrorIs(t, err, ErrValidation)

	badExpr := overdueRule()
	badExpr.Expression = "days_overdue >="
	_, err = f.rules.CreateRule(ctx, badExpr)
	assert.ErrorIs(t, err, ErrValidation)

	empty := overdueRule()
	empty.Conditions = map[string]interface{}{}
	rule, err := f.rules.CreateRule(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, rule.Conditions)
}

func TestRuleService_Evaluate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	overdue, err := f.rules.CreateRule(ctx, overdueRule())
	require.NoError(t, err)

	inactive := overdueRule()
	inactive.IsActive = boolPtr(false)
	_, err = f.rules.CreateRule(ctx, inactive)
	require.NoError(t, err)

	late := &models.RuleSpec{
		Name:       "Escalate late tasks",
		RuleType:   models.RuleTypeAutomation,
		Conditions: map[string]interface{}{"task_status": "overdue"},
		Expression: "days_overdue >= 3",
	}
	escalate, err := f.rules.CreateRule(ctx, late)
	require.NoError(t, err)

	res, err := f.rules.Evaluate(ctx, map[string]interface{}{"task_status": "overdue", "days_overdue": 1}, "")
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalTriggered)
	assert.Equal(t, overdue.ID, res.TriggeredRules[0].RuleID)
	assert.Equal(t, map[string]interface{}{"notify": "assignee"}, res.TriggeredRules[0].Actions)

	res, err = f.rules.Evaluate(ctx, map[string]interface{}{"task_status": "overdue", "days_overdue": 5}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalTriggered)

	res, err = f.rules.Evaluate(ctx, map[string]interface{}{"task_status": "overdue", "days_overdue": 5}, models.RuleTypeAutomation)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalTriggered)
	assert.Equal(t, escalate.ID, res.TriggeredRules[0].RuleID)

	res, err = f.rules.Evaluate(ctx, map[string]interface{}{}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalTriggered)
	assert.NotNil(t, res.TriggeredRules)

	f.publisher.AssertCalled(t, "Publish", mock.MatchedBy(func(e *events.Event) bool {
		return e.Type == events.RulesEvaluated
	}))
}

func TestRuleService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rules.CreateRule(ctx, overdueRule())
	require.NoError(t, err)
	other := overdueRule()
	other.RuleType = models.RuleTypeValidation
	_, err = f.rules.CreateRule(ctx, other)
	require.NoError(t, err)

	byType, err := f.rules.ListRules(ctx, models.RuleFilter{RuleType: models.RuleTypeValidation})
	require.NoError(t, err)
	require.Len(t, byType.Items, 1)
	assert.Equal(t, models.RuleTypeValidation, byType.Items[0].RuleType)
}
