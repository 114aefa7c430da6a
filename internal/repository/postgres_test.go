package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"projectflow/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool))
	// A second run is a no-op.
	require.NoError(t, Migrate(ctx, pool))

	store := NewPostgresStore(pool)
	require.NoError(t, store.Ping(ctx))

	now := time.Now().UTC().Truncate(time.Microsecond)
	wf := &models.Workflow{
		ID:   uuid.New().String(),
		Name: "Sales Pipeline",
		Type: models.WorkflowTypeSales,
		Stages: []models.Stage{
			{Key: "lead", Name: "Lead", Position: 0},
			{Key: "proposal", Name: "Proposal", Position: 1},
			{Key: "closed_won", Name: "Closed Won", Position: 2},
		},
		TerminalStages: []string{"closed_won"},
		Rules:          map[string]interface{}{"auto_assign": true},
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	t.Run("Workflow create, get and update", func(t *testing.T) {
		require.NoError(t, store.CreateWorkflow(ctx, wf))

		got, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, wf.Name, got.Name)
		assert.Equal(t, wf.Stages, got.Stages)
		assert.Equal(t, wf.TerminalStages, got.TerminalStages)
		assert.Equal(t, true, got.Rules["auto_assign"])

		got.Description = "updated"
		got.UpdatedAt = now.Add(time.Second)
		require.NoError(t, store.UpdateWorkflow(ctx, got))

		again, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, "updated", again.Description)

		_, err = store.GetWorkflow(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List workflows with filter", func(t *testing.T) {
		inactive := false
		list, total, err := store.ListWorkflows(ctx, models.WorkflowFilter{Type: models.WorkflowTypeSales})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, list, 1)

		list, total, err = store.ListWorkflows(ctx, models.WorkflowFilter{IsActive: &inactive})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, list)
	})

	inst := &models.WorkflowInstance{
		ID:           uuid.New().String(),
		WorkflowID:   wf.ID,
		ProjectID:    "project-1",
		CurrentStage: "lead",
		StageData:    map[string]interface{}{"owner": "alice"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	t.Run("Instance transition compare-and-swap", func(t *testing.T) {
		require.NoError(t, store.CreateInstance(ctx, inst))

		rec := models.TransitionRecord{
			FromStage:   "lead",
			ToStage:     "proposal",
			Timestamp:   now.Add(time.Minute),
			TriggeredBy: "user-1",
			Data:        map[string]interface{}{"amount": 1200.0},
		}
		got, err := store.ApplyTransition(ctx, inst.ID, rec, rec.Data, false)
		require.NoError(t, err)
		assert.Equal(t, "proposal", got.CurrentStage)
		require.Len(t, got.History, 1)
		assert.Equal(t, "lead", got.History[0].FromStage)
		assert.Equal(t, 1200.0, got.StageData["amount"])
		assert.Equal(t, "alice", got.StageData["owner"])

		_, err = store.ApplyTransition(ctx, inst.ID, rec, nil, false)
		assert.ErrorIs(t, err, ErrStaleState)

		_, err = store.ApplyTransition(ctx, "missing", rec, nil, false)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Concurrent transitions from the same stage", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			stale     int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec := models.TransitionRecord{FromStage: "proposal", ToStage: "lead", Timestamp: time.Now().UTC()}
				_, err := store.ApplyTransition(ctx, inst.ID, rec, nil, false)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					succeeded++
				} else if assert.ErrorIs(t, err, ErrStaleState) {
					stale++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 7, stale)

		got, err := store.GetInstance(ctx, inst.ID)
		require.NoError(t, err)
		assert.Len(t, got.History, 2)
	})

	t.Run("Completed instances reject transitions", func(t *testing.T) {
		rec := models.TransitionRecord{FromStage: "lead", ToStage: "closed_won", Timestamp: time.Now().UTC()}
		got, err := store.ApplyTransition(ctx, inst.ID, rec, nil, true)
		require.NoError(t, err)
		assert.True(t, got.IsCompleted)

		rec = models.TransitionRecord{FromStage: "closed_won", ToStage: "lead", Timestamp: time.Now().UTC()}
		_, err = store.ApplyTransition(ctx, inst.ID, rec, nil, false)
		assert.ErrorIs(t, err, ErrCompleted)

		_, err = store.CompleteInstance(ctx, inst.ID)
		assert.ErrorIs(t, err, ErrCompleted)
	})

	t.Run("List instances by stage", func(t *testing.T) {
		list, total, err := store.ListInstances(ctx, models.InstanceFilter{Stage: "closed_won"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, inst.ID, list[0].ID)
	})

	t.Run("Referenced workflow cannot be deleted", func(t *testing.T) {
		assert.ErrorIs(t, store.DeleteWorkflow(ctx, wf.ID), ErrReferenced)
		assert.ErrorIs(t, store.DeleteWorkflow(ctx, "missing"), ErrNotFound)
	})

	t.Run("Rule CRUD", func(t *testing.T) {
		rule := &models.BusinessRule{
			ID:         uuid.New().String(),
			Name:       "Overdue notice",
			RuleType:   models.RuleTypeNotification,
			Conditions: map[string]interface{}{"task_status": "in_progress"},
			Expression: "days_overdue >= 1",
			Actions:    map[string]interface{}{"template": "overdue"},
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		require.NoError(t, store.CreateRule(ctx, rule))

		got, err := store.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, rule.Conditions, got.Conditions)
		assert.Equal(t, rule.Expression, got.Expression)

		got.IsActive = false
		require.NoError(t, store.UpdateRule(ctx, got))

		list, total, err := store.ListRules(ctx, models.RuleFilter{RuleType: models.RuleTypeNotification})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.False(t, list[0].IsActive)

		require.NoError(t, store.DeleteRule(ctx, rule.ID))
		assert.ErrorIs(t, store.DeleteRule(ctx, rule.ID), ErrNotFound)
	})
}
