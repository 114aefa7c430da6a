package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/rules"
	"projectflow/backend/internal/services"
	"projectflow/backend/internal/validation"
	"projectflow/backend/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *models.Workflow) {
	t.Helper()
	store := repository.NewMemoryStore()
	v := validation.MustNew()
	workflows := services.NewWorkflowService(store, v, nil)
	s := NewServer(
		workflows,
		services.NewInstanceService(store, store, nil, nil, nil),
		services.NewRuleService(store, rules.NewEvaluator(), v, nil, nil, nil),
		services.NewStatisticsService(store),
	)

	wf, err := workflows.CreateWorkflow(context.Background(), &models.WorkflowSpec{
		Name:   "Development",
		Type:   models.WorkflowTypeDevelopment,
		Stages: []models.Stage{{Key: "todo"}, {Key: "doing"}, {Key: "done"}},
	})
	require.NoError(t, err)
	return s, wf
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestTools_InstanceLifecycle(t *testing.T) {
	s, wf := newTestServer(t)
	ctx := auth.WithUser(context.Background(), "bot@example.com")

	res, err := s.handleCreateInstance(ctx, call("create_instance", map[string]interface{}{
		"workflow_id": wf.ID, "project_id": "p1", "initial_stage": "todo",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var inst models.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &inst))

	res, err = s.handleTransition(ctx, call("transition_instance", map[string]interface{}{
		"instance_id": inst.ID, "from_stage": "todo", "to_stage": "doing", "notes": "picked up",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var moved models.WorkflowInstance
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &moved))
	assert.Equal(t, "doing", moved.CurrentStage)
	require.Len(t, moved.History, 1)
	assert.Equal(t, "bot@example.com", moved.History[0].TriggeredBy)

	res, err = s.handleTransition(context.Background(), call("transition_instance", map[string]interface{}{
		"instance_id": inst.ID, "from_stage": "todo", "to_stage": "done",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "STALE_STATE")

	res, err = s.handleGetInstance(ctx, call("get_instance", map[string]interface{}{"instance_id": inst.ID}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"current_stage":"doing"`)
}

func TestTools_MissingArguments(t *testing.T) {
	s, _ := newTestServer(t)

	res, err := s.handleGetInstance(context.Background(), call("get_instance", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleEvaluateRules(context.Background(), call("evaluate_rules", map[string]interface{}{"context": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTools_ListEvaluateStatistics(t *testing.T) {
	s, wf := newTestServer(t)
	ctx := context.Background()

	_, err := s.rules.CreateRule(ctx, &models.RuleSpec{
		Name:       "Blocked",
		RuleType:   models.RuleTypeNotification,
		Conditions: map[string]interface{}{"status": "blocked"},
	})
	require.NoError(t, err)

	res, err := s.handleListWorkflows(ctx, call("list_workflows", map[string]interface{}{"type": "development"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), wf.ID)

	res, err = s.handleEvaluateRules(ctx, call("evaluate_rules", map[string]interface{}{
		"context": map[string]interface{}{"status": "blocked"},
	}))
	require.NoError(t, err)
	var result models.EvaluationResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &result))
	assert.Equal(t, 1, result.TotalTriggered)

	res, err = s.handleStatistics(ctx, call("workflow_statistics", nil))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"total_workflows":1`)
}
