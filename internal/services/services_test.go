package services

import (
	"testing"

	"github.com/stretchr/testify/mock"

	"projectflow/backend/internal/events"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/rules"
	"projectflow/backend/internal/validation"
	"projectflow/backend/pkg/models"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(event *events.Event) {
	m.Called(event)
}

type fixture struct {
	store     *repository.MemoryStore
	publisher *mockPublisher
	workflows *WorkflowService
	instances *InstanceService
	rules     *RuleService
	stats     *StatisticsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything).Return().Maybe()
	v := validation.MustNew()

	return &fixture{
		store:     store,
		publisher: pub,
		workflows: NewWorkflowService(store, v, nil),
		instances: NewInstanceService(store, store, pub, nil, nil),
		rules:     NewRuleService(store, rules.NewEvaluator(), v, pub, nil, nil),
		stats:     NewStatisticsService(store),
	}
}

func abcSpec() *models.WorkflowSpec {
	return &models.WorkflowSpec{
		Name: "ABC",
		Type: models.WorkflowTypeDevelopment,
		Stages: []models.Stage{
			{Key: "a", Name: "A"},
			{Key: "b", Name: "B"},
			{Key: "c", Name: "C"},
		},
	}
}

func boolPtr(b bool) *bool { return &b }
