package repository

import (
	"context"
	"errors"

	"projectflow/backend/pkg/models"
)

var (
	// ErrNotFound is returned when no record has the requested ID.
	ErrNotFound = errors.New("repository: not found")
	// ErrStaleState is returned by ApplyTransition when the instance's current
	// stage no longer equals the expected prior stage.
	ErrStaleState = errors.New("repository: stale state")
	// ErrCompleted is returned when mutating an instance that is completed.
	ErrCompleted = errors.New("repository: instance completed")
	// ErrReferenced is returned when deleting a workflow that still has
	// instances.
	ErrReferenced = errors.New("repository: workflow referenced by instances")
)

// WorkflowStore persists workflow templates.
type WorkflowStore interface {
	// CreateWorkflow stores a new workflow. The ID must already be set.
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// GetWorkflow retrieves a workflow by its ID.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	// UpdateWorkflow replaces every mutable field of an existing workflow.
	UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error
	// DeleteWorkflow removes a workflow that no instance references.
	DeleteWorkflow(ctx context.Context, id string) error
	// ListWorkflows returns one page of matching workflows in insertion order
	// and the total number of matches.
	ListWorkflows(ctx context.Context, filter models.WorkflowFilter) ([]*models.Workflow, int, error)
}

// InstanceStore persists workflow instances. Stage changes go through
// ApplyTransition only.
type InstanceStore interface {
	CreateInstance(ctx context.Context, instance *models.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
	ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.WorkflowInstance, int, error)
	// ApplyTransition atomically moves the instance from record.FromStage to
	// record.ToStage, appends record to the history, merges stageData into
	// the instance's stage data and, when complete is true, marks the
	// instance completed. The update is a compare-and-swap on the current
	// stage: it fails with ErrStaleState when the stage has moved and with
	// ErrCompleted when the instance is already completed.
	ApplyTransition(ctx context.Context, id string, record models.TransitionRecord, stageData map[string]interface{}, complete bool) (*models.WorkflowInstance, error)
	// CompleteInstance marks an instance completed. It fails with
	// ErrCompleted when the instance already is.
	CompleteInstance(ctx context.Context, id string) (*models.WorkflowInstance, error)
}

// RuleStore persists business rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *models.BusinessRule) error
	GetRule(ctx context.Context, id string) (*models.BusinessRule, error)
	UpdateRule(ctx context.Context, rule *models.BusinessRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, filter models.RuleFilter) ([]*models.BusinessRule, int, error)
}

// Repository is the full persistence surface used by the services.
type Repository interface {
	WorkflowStore
	InstanceStore
	RuleStore
	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
