// Package services implements the workflow template store, the instance
// engine, the rule evaluator and the statistics aggregator on top of the
// repository layer.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/validation"
	"projectflow/backend/pkg/models"
)

var tracer = otel.Tracer("projectflow/services")

// WorkflowService manages workflow templates.
type WorkflowService struct {
	store     repository.WorkflowStore
	validator *validation.Validator
	logger    *logging.Logger
	now       func() time.Time
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(store repository.WorkflowStore, validator *validation.Validator, logger *logging.Logger) *WorkflowService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &WorkflowService{
		store:     store,
		validator: validator,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateWorkflow validates spec and stores it as a new workflow. Stage
// positions are assigned from their order in spec.Stages.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, spec *models.WorkflowSpec) (*models.Workflow, error) {
	ctx, span := tracer.Start(ctx, "WorkflowService.CreateWorkflow")
	defer span.End()

	if err := s.validator.ValidateWorkflow(spec); err != nil {
		return nil, fromValidation(err)
	}

	now := s.now()
	wf := &models.Workflow{
		ID:             uuid.New().String(),
		Name:           spec.Name,
		Description:    spec.Description,
		Type:           spec.Type,
		Stages:         positioned(spec.Stages),
		TerminalStages: spec.TerminalStages,
		Rules:          spec.Rules,
		IsActive:       spec.IsActive == nil || *spec.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	span.SetAttributes(attribute.String("workflow.id", wf.ID))

	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fromRepository(err, "workflow", wf.ID)
	}

	s.logger.InfoContext(logging.WithWorkflowID(ctx, wf.ID), "workflow created",
		"name", wf.Name,
		"type", wf.Type,
		"stages", len(wf.Stages),
	)
	return wf, nil
}

// GetWorkflow returns the workflow with id.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "workflow", id)
	}
	return wf, nil
}

// UpdateWorkflow applies the non-nil fields of update and re-validates the
// result before storing it. Existing instances keep their current stage
// even if the stage is removed from the workflow.
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, id string, update *models.WorkflowUpdate) (*models.Workflow, error) {
	ctx, span := tracer.Start(ctx, "WorkflowService.UpdateWorkflow")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.id", id))

	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "workflow", id)
	}
	if update == nil {
		return wf, nil
	}

	spec := &models.WorkflowSpec{
		Name:           wf.Name,
		Description:    wf.Description,
		Type:           wf.Type,
		Stages:         wf.Stages,
		TerminalStages: wf.TerminalStages,
		Rules:          wf.Rules,
		IsActive:       &wf.IsActive,
	}
	if update.Name != nil {
		spec.Name = *update.Name
	}
	if update.Description != nil {
		spec.Description = *update.Description
	}
	if update.Type != nil {
		spec.Type = *update.Type
	}
	if update.Stages != nil {
		spec.Stages = *update.Stages
	}
	if update.TerminalStages != nil {
		spec.TerminalStages = *update.TerminalStages
	}
	if update.Rules != nil {
		spec.Rules = *update.Rules
	}
	if update.IsActive != nil {
		spec.IsActive = update.IsActive
	}

	if err := s.validator.ValidateWorkflow(spec); err != nil {
		return nil, fromValidation(err)
	}

	wf.Name = spec.Name
	wf.Description = spec.Description
	wf.Type = spec.Type
	wf.Stages = positioned(spec.Stages)
	wf.TerminalStages = spec.TerminalStages
	wf.Rules = spec.Rules
	wf.IsActive = *spec.IsActive
	wf.UpdatedAt = s.now()

	if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
		return nil, fromRepository(err, "workflow", id)
	}

	s.logger.InfoContext(logging.WithWorkflowID(ctx, id), "workflow updated")
	return wf, nil
}

// DeleteWorkflow removes a workflow. A workflow that still has instances
// cannot be deleted.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id string) error {
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return fromRepository(err, "workflow", id)
	}
	s.logger.InfoContext(logging.WithWorkflowID(ctx, id), "workflow deleted")
	return nil
}

// ListWorkflows returns one page of workflows matching filter.
func (s *WorkflowService) ListWorkflows(ctx context.Context, filter models.WorkflowFilter) (*models.ListResponse[*models.Workflow], error) {
	filter.Page = filter.Page.Normalized()
	items, total, err := s.store.ListWorkflows(ctx, filter)
	if err != nil {
		return nil, err
	}
	return listResponse(items, total, filter.Page), nil
}

func positioned(stages []models.Stage) []models.Stage {
	out := make([]models.Stage, len(stages))
	for i, st := range stages {
		st.Position = i
		if st.Name == "" {
			st.Name = st.Key
		}
		out[i] = st
	}
	return out
}

func listResponse[T any](items []T, total int, page models.Page) *models.ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &models.ListResponse[T]{
		Items:  items,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
}
