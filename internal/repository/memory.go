package repository

import (
	"context"
	"sync"
	"time"

	"projectflow/backend/pkg/models"
)

// MemoryStore is an in-process implementation of Repository. It is used by
// the tests and by the server when db.driver is "memory". Records are cloned
// on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	workflows     map[string]*models.Workflow
	workflowOrder []string
	instances     map[string]*models.WorkflowInstance
	instanceOrder []string
	rules         map[string]*models.BusinessRule
	ruleOrder     []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*models.Workflow),
		instances: make(map[string]*models.WorkflowInstance),
		rules:     make(map[string]*models.BusinessRule),
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// CreateWorkflow stores a new workflow.
func (s *MemoryStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[workflow.ID] = cloneWorkflow(workflow)
	s.workflowOrder = append(s.workflowOrder, workflow.ID)
	return nil
}

// GetWorkflow retrieves a workflow by its ID.
func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWorkflow(wf), nil
}

// UpdateWorkflow replaces an existing workflow.
func (s *MemoryStore) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[workflow.ID]; !ok {
		return ErrNotFound
	}
	s.workflows[workflow.ID] = cloneWorkflow(workflow)
	return nil
}

// DeleteWorkflow removes a workflow that has no instances.
func (s *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	for _, inst := range s.instances {
		if inst.WorkflowID == id {
			return ErrReferenced
		}
	}
	delete(s.workflows, id)
	s.workflowOrder = removeID(s.workflowOrder, id)
	return nil
}

// ListWorkflows returns matching workflows in insertion order.
func (s *MemoryStore) ListWorkflows(ctx context.Context, filter models.WorkflowFilter) ([]*models.Workflow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Workflow
	for _, id := range s.workflowOrder {
		wf := s.workflows[id]
		if filter.Type != "" && wf.Type != filter.Type {
			continue
		}
		if filter.IsActive != nil && wf.IsActive != *filter.IsActive {
			continue
		}
		matched = append(matched, wf)
	}

	page := paginate(matched, filter.Page)
	out := make([]*models.Workflow, len(page))
	for i, wf := range page {
		out[i] = cloneWorkflow(wf)
	}
	return out, len(matched), nil
}

// CreateInstance stores a new workflow instance.
func (s *MemoryStore) CreateInstance(ctx context.Context, instance *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[instance.WorkflowID]; !ok {
		return ErrNotFound
	}
	s.instances[instance.ID] = cloneInstance(instance)
	s.instanceOrder = append(s.instanceOrder, instance.ID)
	return nil
}

// GetInstance retrieves a workflow instance by its ID.
func (s *MemoryStore) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInstance(inst), nil
}

// ListInstances returns matching instances in insertion order.
func (s *MemoryStore) ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.WorkflowInstance, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.WorkflowInstance
	for _, id := range s.instanceOrder {
		inst := s.instances[id]
		if filter.ProjectID != "" && inst.ProjectID != filter.ProjectID {
			continue
		}
		if filter.WorkflowID != "" && inst.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Stage != "" && inst.CurrentStage != filter.Stage {
			continue
		}
		matched = append(matched, inst)
	}

	page := paginate(matched, filter.Page)
	out := make([]*models.WorkflowInstance, len(page))
	for i, inst := range page {
		out[i] = cloneInstance(inst)
	}
	return out, len(matched), nil
}

// ApplyTransition performs the stage compare-and-swap under the store lock.
func (s *MemoryStore) ApplyTransition(ctx context.Context, id string, record models.TransitionRecord, stageData map[string]interface{}, complete bool) (*models.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	if inst.IsCompleted {
		return nil, ErrCompleted
	}
	if inst.CurrentStage != record.FromStage {
		return nil, ErrStaleState
	}

	if record.Data == nil {
		record.Data = map[string]interface{}{}
	}
	record.Data = cloneMap(record.Data)
	inst.History = append(inst.History, record)
	inst.CurrentStage = record.ToStage
	if len(stageData) > 0 {
		if inst.StageData == nil {
			inst.StageData = make(map[string]interface{}, len(stageData))
		}
		for k, v := range stageData {
			inst.StageData[k] = cloneValue(v)
		}
	}
	if complete {
		inst.IsCompleted = true
	}
	inst.UpdatedAt = record.Timestamp

	return cloneInstance(inst), nil
}

// CompleteInstance marks an instance completed.
func (s *MemoryStore) CompleteInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	if inst.IsCompleted {
		return nil, ErrCompleted
	}
	inst.IsCompleted = true
	inst.UpdatedAt = time.Now().UTC()
	return cloneInstance(inst), nil
}

// CreateRule stores a new business rule.
func (s *MemoryStore) CreateRule(ctx context.Context, rule *models.BusinessRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = cloneRule(rule)
	s.ruleOrder = append(s.ruleOrder, rule.ID)
	return nil
}

// GetRule retrieves a business rule by its ID.
func (s *MemoryStore) GetRule(ctx context.Context, id string) (*models.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRule(rule), nil
}

// UpdateRule replaces an existing business rule.
func (s *MemoryStore) UpdateRule(ctx context.Context, rule *models.BusinessRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return ErrNotFound
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// DeleteRule removes a business rule.
func (s *MemoryStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	s.ruleOrder = removeID(s.ruleOrder, id)
	return nil
}

// ListRules returns matching rules in insertion order.
func (s *MemoryStore) ListRules(ctx context.Context, filter models.RuleFilter) ([]*models.BusinessRule, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.BusinessRule
	for _, id := range s.ruleOrder {
		rule := s.rules[id]
		if filter.RuleType != "" && rule.RuleType != filter.RuleType {
			continue
		}
		if filter.IsActive != nil && rule.IsActive != *filter.IsActive {
			continue
		}
		matched = append(matched, rule)
	}

	page := paginate(matched, filter.Page)
	out := make([]*models.BusinessRule, len(page))
	for i, rule := range page {
		out[i] = cloneRule(rule)
	}
	return out, len(matched), nil
}

func paginate[T any](items []T, p models.Page) []T {
	p = p.Normalized()
	if p.Offset >= len(items) {
		return nil
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func cloneWorkflow(w *models.Workflow) *models.Workflow {
	c := *w
	c.Stages = append([]models.Stage(nil), w.Stages...)
	c.TerminalStages = append([]string(nil), w.TerminalStages...)
	c.Rules = cloneMap(w.Rules)
	return &c
}

func cloneInstance(i *models.WorkflowInstance) *models.WorkflowInstance {
	c := *i
	c.StageData = cloneMap(i.StageData)
	c.History = make([]models.TransitionRecord, len(i.History))
	for n, rec := range i.History {
		rec.Data = cloneMap(rec.Data)
		c.History[n] = rec
	}
	return &c
}

func cloneRule(r *models.BusinessRule) *models.BusinessRule {
	c := *r
	c.Conditions = cloneMap(r.Conditions)
	c.Actions = cloneMap(r.Actions)
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

var _ Repository = (*MemoryStore)(nil)
