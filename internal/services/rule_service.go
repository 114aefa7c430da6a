package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"projectflow/backend/internal/events"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/metrics"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/rules"
	"projectflow/backend/internal/validation"
	"projectflow/backend/pkg/models"
)

// RuleService manages business rules and evaluates them against contexts.
type RuleService struct {
	store     repository.RuleStore
	evaluator *rules.Evaluator
	validator *validation.Validator
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewRuleService creates a RuleService. publisher and m may be nil.
func NewRuleService(store repository.RuleStore, evaluator *rules.Evaluator, validator *validation.Validator, publisher events.Publisher, m *metrics.Metrics, logger *logging.Logger) *RuleService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RuleService{
		store:     store,
		evaluator: evaluator,
		validator: validator,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateRule validates spec and stores it as a new rule. A rule with no
// conditions is accepted but matches every context, so it is logged.
func (s *RuleService) CreateRule(ctx context.Context, spec *models.RuleSpec) (*models.BusinessRule, error) {
	ctx, span := tracer.Start(ctx, "RuleService.CreateRule")
	defer span.End()

	if err := s.check(ctx, spec); err != nil {
		return nil, err
	}

	now := s.now()
	rule := &models.BusinessRule{
		ID:          uuid.New().String(),
		Name:        spec.Name,
		Description: spec.Description,
		RuleType:    spec.RuleType,
		Conditions:  spec.Conditions,
		Expression:  spec.Expression,
		Actions:     actionsOrEmpty(spec.Actions),
		IsActive:    spec.IsActive == nil || *spec.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	span.SetAttributes(attribute.String("rule.id", rule.ID))

	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fromRepository(err, "rule", rule.ID)
	}
	s.logger.InfoContext(ctx, "business rule created", "rule_id", rule.ID, "rule_type", rule.RuleType)
	return rule, nil
}

// GetRule returns the rule with id.
func (s *RuleService) GetRule(ctx context.Context, id string) (*models.BusinessRule, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "rule", id)
	}
	return rule, nil
}

// UpdateRule replaces the mutable fields of rule id with spec.
func (s *RuleService) UpdateRule(ctx context.Context, id string, spec *models.RuleSpec) (*models.BusinessRule, error) {
	ctx, span := tracer.Start(ctx, "RuleService.UpdateRule")
	defer span.End()
	span.SetAttributes(attribute.String("rule.id", id))

	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "rule", id)
	}
	if err := s.check(ctx, spec); err != nil {
		return nil, err
	}

	rule.Name = spec.Name
	rule.Description = spec.Description
	rule.RuleType = spec.RuleType
	rule.Conditions = spec.Conditions
	rule.Expression = spec.Expression
	rule.Actions = actionsOrEmpty(spec.Actions)
	if spec.IsActive != nil {
		rule.IsActive = *spec.IsActive
	}
	rule.UpdatedAt = s.now()

	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fromRepository(err, "rule", id)
	}
	s.logger.InfoContext(ctx, "business rule updated", "rule_id", id)
	return rule, nil
}

// DeleteRule removes rule id.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return fromRepository(err, "rule", id)
	}
	s.logger.InfoContext(ctx, "business rule deleted", "rule_id", id)
	return nil
}

// ListRules returns one page of rules matching filter.
func (s *RuleService) ListRules(ctx context.Context, filter models.RuleFilter) (*models.ListResponse[*models.BusinessRule], error) {
	filter.Page = filter.Page.Normalized()
	items, total, err := s.store.ListRules(ctx, filter)
	if err != nil {
		return nil, err
	}
	return listResponse(items, total, filter.Page), nil
}

// Evaluate returns the active rules, optionally narrowed to ruleType, that
// evalCtx triggers. It has no side effects on rules or instances.
func (s *RuleService) Evaluate(ctx context.Context, evalCtx map[string]interface{}, ruleType string) (*models.EvaluationResult, error) {
	ctx, span := tracer.Start(ctx, "RuleService.Evaluate")
	defer span.End()
	start := time.Now()

	active, err := s.activeRules(ctx, ruleType)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluator.Evaluate(ctx, active, evalCtx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordEvaluationDuration(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("rules.evaluated", len(active)),
		attribute.Int("rules.triggered", result.TotalTriggered),
	)

	ids := make([]string, len(result.TriggeredRules))
	for i, tr := range result.TriggeredRules {
		ids[i] = tr.RuleID
	}
	s.logger.DebugContext(ctx, "business rules evaluated",
		"evaluated", len(active),
		"triggered", result.TotalTriggered,
	)
	s.publisher.Publish(&events.Event{
		Type:      events.RulesEvaluated,
		Timestamp: s.now(),
		Triggered: ids,
	})
	return result, nil
}

// activeRules pages through every active rule of ruleType.
func (s *RuleService) activeRules(ctx context.Context, ruleType string) ([]*models.BusinessRule, error) {
	active := true
	filter := models.RuleFilter{RuleType: ruleType, IsActive: &active}
	filter.Limit = 500

	var out []*models.BusinessRule
	for {
		page, total, err := s.store.ListRules(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			return out, nil
		}
	}
}

func (s *RuleService) check(ctx context.Context, spec *models.RuleSpec) error {
	if err := s.validator.ValidateRule(spec); err != nil {
		return fromValidation(err)
	}
	if spec.Expression != "" {
		if err := s.evaluator.Compile(spec.Expression); err != nil {
			return newError(CodeValidation, "invalid expression: %v", err).
				WithDetails(map[string]any{"expression": spec.Expression}).
				WithCause(err)
		}
	}
	if len(spec.Conditions) == 0 && spec.Expression == "" {
		s.logger.WarnContext(ctx, "business rule has no conditions and matches every context", "name", spec.Name)
	}
	return nil
}

func actionsOrEmpty(actions map[string]interface{}) map[string]interface{} {
	if actions == nil {
		return map[string]interface{}{}
	}
	return actions
}
