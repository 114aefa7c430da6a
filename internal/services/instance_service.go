package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"projectflow/backend/internal/events"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/metrics"
	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"
)

// InstanceService creates workflow instances and moves them through their
// workflow's stages.
type InstanceService struct {
	workflows repository.WorkflowStore
	instances repository.InstanceStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewInstanceService creates an InstanceService. publisher and m may be nil.
func NewInstanceService(workflows repository.WorkflowStore, instances repository.InstanceStore, publisher events.Publisher, m *metrics.Metrics, logger *logging.Logger) *InstanceService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &InstanceService{
		workflows: workflows,
		instances: instances,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateInstance binds a new instance of a workflow to a project, starting
// at req.InitialStage with an empty history.
func (s *InstanceService) CreateInstance(ctx context.Context, req *models.CreateInstanceRequest) (*models.WorkflowInstance, error) {
	ctx, span := tracer.Start(ctx, "InstanceService.CreateInstance")
	defer span.End()

	if req == nil || strings.TrimSpace(req.WorkflowID) == "" || strings.TrimSpace(req.ProjectID) == "" {
		return nil, newError(CodeValidation, "workflow_id and project_id are required")
	}

	wf, err := s.workflows.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, fromRepository(err, "workflow", req.WorkflowID)
	}
	if !wf.HasStage(req.InitialStage) {
		return nil, newError(CodeInvalidStage, "stage %q is not defined by workflow %q", req.InitialStage, wf.ID).
			WithDetails(map[string]any{"stage": req.InitialStage, "workflow_id": wf.ID})
	}

	stageData := req.StageData
	if stageData == nil {
		stageData = map[string]interface{}{}
	}

	now := s.now()
	inst := &models.WorkflowInstance{
		ID:           uuid.New().String(),
		WorkflowID:   wf.ID,
		ProjectID:    req.ProjectID,
		CurrentStage: req.InitialStage,
		StageData:    stageData,
		History:      []models.TransitionRecord{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	span.SetAttributes(attribute.String("instance.id", inst.ID), attribute.String("workflow.id", wf.ID))

	if err := s.instances.CreateInstance(ctx, inst); err != nil {
		return nil, fromRepository(err, "workflow", wf.ID)
	}

	ctx = logging.WithInstanceID(logging.WithWorkflowID(ctx, wf.ID), inst.ID)
	s.logger.InfoContext(ctx, "workflow instance created",
		"project_id", inst.ProjectID,
		"stage", inst.CurrentStage,
	)
	s.publisher.Publish(&events.Event{
		Type:       events.InstanceCreated,
		Timestamp:  now,
		InstanceID: inst.ID,
		WorkflowID: wf.ID,
		ProjectID:  inst.ProjectID,
		ToStage:    inst.CurrentStage,
	})
	return inst, nil
}

// GetInstance returns the instance with id.
func (s *InstanceService) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	inst, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "workflow instance", id)
	}
	return inst, nil
}

// ListInstances returns one page of instances matching filter.
func (s *InstanceService) ListInstances(ctx context.Context, filter models.InstanceFilter) (*models.ListResponse[*models.WorkflowInstance], error) {
	filter.Page = filter.Page.Normalized()
	items, total, err := s.instances.ListInstances(ctx, filter)
	if err != nil {
		return nil, err
	}
	return listResponse(items, total, filter.Page), nil
}

// Transition moves instance id from req.FromStage to req.ToStage. The move
// is a compare-and-swap on the current stage: when two callers race from
// the same stage exactly one succeeds and the other gets StaleState.
// Reaching one of the workflow's terminal stages completes the instance.
func (s *InstanceService) Transition(ctx context.Context, id string, req *models.TransitionRequest) (*models.WorkflowInstance, error) {
	ctx, span := tracer.Start(ctx, "InstanceService.Transition")
	defer span.End()
	span.SetAttributes(attribute.String("instance.id", id))

	inst, err := s.transition(ctx, id, req)
	if err != nil {
		var serr *Error
		if errors.As(err, &serr) {
			s.metrics.RecordTransitionRejected(serr.Code)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return inst, nil
}

func (s *InstanceService) transition(ctx context.Context, id string, req *models.TransitionRequest) (*models.WorkflowInstance, error) {
	if req == nil {
		return nil, newError(CodeValidation, "transition request is required")
	}

	current, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "workflow instance", id)
	}
	if current.IsCompleted {
		return nil, newError(CodeConflict, "workflow instance %q is completed", id)
	}

	wf, err := s.workflows.GetWorkflow(ctx, current.WorkflowID)
	if err != nil {
		return nil, fromRepository(err, "workflow", current.WorkflowID)
	}
	if !wf.HasStage(req.ToStage) {
		return nil, newError(CodeInvalidStage, "stage %q is not defined by workflow %q", req.ToStage, wf.ID).
			WithDetails(map[string]any{"stage": req.ToStage, "workflow_id": wf.ID})
	}
	if current.CurrentStage != req.FromStage {
		return nil, staleState(id, req.FromStage, current.CurrentStage)
	}

	data := req.TransitionData
	if data == nil {
		data = map[string]interface{}{}
	}
	record := models.TransitionRecord{
		FromStage:   req.FromStage,
		ToStage:     req.ToStage,
		Timestamp:   s.now(),
		TriggeredBy: req.TriggeredBy,
		Data:        data,
		Notes:       req.Notes,
	}
	complete := wf.IsTerminal(req.ToStage)

	updated, err := s.instances.ApplyTransition(ctx, id, record, data, complete)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, staleState(id, req.FromStage, "").WithCause(err)
		}
		return nil, fromRepository(err, "workflow instance", id)
	}

	ctx = logging.WithInstanceID(logging.WithWorkflowID(ctx, wf.ID), id)
	s.logger.InfoContext(ctx, "workflow instance transitioned",
		"from_stage", record.FromStage,
		"to_stage", record.ToStage,
		"triggered_by", record.TriggeredBy,
		"completed", updated.IsCompleted,
	)

	s.publisher.Publish(&events.Event{
		Type:        events.InstanceTransitioned,
		Timestamp:   record.Timestamp,
		InstanceID:  id,
		WorkflowID:  wf.ID,
		ProjectID:   updated.ProjectID,
		FromStage:   record.FromStage,
		ToStage:     record.ToStage,
		TriggeredBy: record.TriggeredBy,
	})
	if complete {
		s.publishCompleted(updated, record.TriggeredBy)
	}
	return updated, nil
}

// CompleteInstance marks instance id completed without moving its stage.
// Completing an instance twice is a Conflict.
func (s *InstanceService) CompleteInstance(ctx context.Context, id, triggeredBy string) (*models.WorkflowInstance, error) {
	ctx, span := tracer.Start(ctx, "InstanceService.CompleteInstance")
	defer span.End()
	span.SetAttributes(attribute.String("instance.id", id))

	inst, err := s.instances.CompleteInstance(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "workflow instance", id)
	}

	s.logger.InfoContext(logging.WithInstanceID(ctx, id), "workflow instance completed",
		"stage", inst.CurrentStage,
		"triggered_by", triggeredBy,
	)
	s.publishCompleted(inst, triggeredBy)
	return inst, nil
}

func (s *InstanceService) publishCompleted(inst *models.WorkflowInstance, triggeredBy string) {
	s.publisher.Publish(&events.Event{
		Type:        events.InstanceCompleted,
		Timestamp:   inst.UpdatedAt,
		InstanceID:  inst.ID,
		WorkflowID:  inst.WorkflowID,
		ProjectID:   inst.ProjectID,
		ToStage:     inst.CurrentStage,
		TriggeredBy: triggeredBy,
	})
}

func staleState(id, expected, actual string) *Error {
	details := map[string]any{"expected_stage": expected}
	if actual != "" {
		details["current_stage"] = actual
	}
	return newError(CodeStaleState, "workflow instance %q is no longer at stage %q", id, expected).
		WithDetails(details)
}
