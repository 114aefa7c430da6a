package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectflow/backend/pkg/models"
)

func TestStatisticsService_Empty(t *testing.T) {
	f := newFixture(t)

	stats, err := f.stats.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalWorkflows)
	assert.Zero(t, stats.CompletionRate)
	assert.NotNil(t, stats.RecentWorkflows)
	assert.NotNil(t, stats.InstancesByStage)
}

func TestStatisticsService_Counts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	f.workflows.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}

	var workflows []*models.Workflow
	for i := 0; i < 6; i++ {
		spec := abcSpec()
		if i == 0 {
			spec.Type = models.WorkflowTypeSales
			spec.IsActive = boolPtr(false)
		}
		wf, err := f.workflows.CreateWorkflow(ctx, spec)
		require.NoError(t, err)
		workflows = append(workflows, wf)
	}

	var instances []*models.WorkflowInstance
	for _, stage := range []string{"a", "a", "b", "c"} {
		inst, err := f.instances.CreateInstance(ctx, &models.CreateInstanceRequest{
			WorkflowID: workflows[1].ID, ProjectID: "p", InitialStage: stage,
		})
		require.NoError(t, err)
		instances = append(instances, inst)
	}
	_, err := f.instances.CompleteInstance(ctx, instances[3].ID, "alice")
	require.NoError(t, err)

	_, err = f.rules.CreateRule(ctx, overdueRule())
	require.NoError(t, err)
	inactive := overdueRule()
	inactive.RuleType = models.RuleTypeValidation
	inactive.IsActive = boolPtr(false)
	_, err = f.rules.CreateRule(ctx, inactive)
	require.NoError(t, err)

	stats, err := f.stats.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.TotalWorkflows)
	assert.Equal(t, 5, stats.ActiveWorkflows)
	assert.Equal(t, map[string]int{models.WorkflowTypeSales: 1, models.WorkflowTypeDevelopment: 5}, stats.WorkflowsByType)

	assert.Equal(t, 4, stats.TotalInstances)
	assert.Equal(t, 1, stats.CompletedInstances)
	assert.Equal(t, 3, stats.ActiveInstances)
	assert.InDelta(t, 0.25, stats.CompletionRate, 1e-9)
	assert.Equal(t, map[string]int{"a": 2, "b": 1, "c": 1}, stats.InstancesByStage)

	assert.Equal(t, 2, stats.TotalRules)
	assert.Equal(t, 1, stats.ActiveRules)
	assert.Equal(t, map[string]int{models.RuleTypeNotification: 1, models.RuleTypeValidation: 1}, stats.RulesByType)

	require.Len(t, stats.RecentWorkflows, 5)
	assert.Equal(t, workflows[5].ID, stats.RecentWorkflows[0].ID)
	assert.Equal(t, workflows[1].ID, stats.RecentWorkflows[4].ID)
}
