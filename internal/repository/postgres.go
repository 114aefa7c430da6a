package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"projectflow/backend/pkg/models"
)

// foreignKeyViolation is the SQLSTATE raised when a delete would orphan a
// referencing row.
const foreignKeyViolation = "23503"

// PostgresStore is a PostgreSQL implementation of the Repository interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const workflowColumns = `id, name, description, type, stages, terminal_stages, rules, is_active, created_at, updated_at`

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var wf models.Workflow
	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Type, &wf.Stages,
		&wf.TerminalStages, &wf.Rules, &wf.IsActive, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// CreateWorkflow inserts a workflow.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflows (`+workflowColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		wf.ID, wf.Name, wf.Description, wf.Type, wf.Stages, terminalStages(wf.TerminalStages),
		wf.Rules, wf.IsActive, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by its ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := scanWorkflow(s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "select workflow")
	}
	return wf, nil
}

// UpdateWorkflow replaces the mutable fields of a workflow.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET name = $2, description = $3, type = $4, stages = $5,
			terminal_stages = $6, rules = $7, is_active = $8, updated_at = $9
		WHERE id = $1`,
		wf.ID, wf.Name, wf.Description, wf.Type, wf.Stages, terminalStages(wf.TerminalStages),
		wf.Rules, wf.IsActive, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow. The foreign key on workflow_instances
// rejects the delete while instances still reference it.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrReferenced
		}
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWorkflows returns matching workflows ordered by creation.
func (s *PostgresStore) ListWorkflows(ctx context.Context, filter models.WorkflowFilter) ([]*models.Workflow, int, error) {
	var w where
	if filter.Type != "" {
		w.add("type = $%d", filter.Type)
	}
	if filter.IsActive != nil {
		w.add("is_active = $%d", *filter.IsActive)
	}

	total, err := s.count(ctx, "workflows", w)
	if err != nil {
		return nil, 0, err
	}

	query, args := w.page(`SELECT `+workflowColumns+` FROM workflows`, filter.Page)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, total, rows.Err()
}

const instanceColumns = `id, workflow_id, project_id, current_stage, stage_data, history, is_completed, created_at, updated_at`

func scanInstance(row pgx.Row) (*models.WorkflowInstance, error) {
	var inst models.WorkflowInstance
	err := row.Scan(&inst.ID, &inst.WorkflowID, &inst.ProjectID, &inst.CurrentStage,
		&inst.StageData, &inst.History, &inst.IsCompleted, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if inst.History == nil {
		inst.History = []models.TransitionRecord{}
	}
	return &inst, nil
}

// CreateInstance inserts a workflow instance.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	history := inst.History
	if history == nil {
		history = []models.TransitionRecord{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_instances (`+instanceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inst.ID, inst.WorkflowID, inst.ProjectID, inst.CurrentStage, jsonObject(inst.StageData),
		history, inst.IsCompleted, inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrNotFound
		}
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

// GetInstance retrieves a workflow instance by its ID.
func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	inst, err := scanInstance(s.db.QueryRow(ctx, `SELECT `+instanceColumns+` FROM workflow_instances WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "select workflow instance")
	}
	return inst, nil
}

// ListInstances returns matching instances ordered by creation.
func (s *PostgresStore) ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.WorkflowInstance, int, error) {
	var w where
	if filter.ProjectID != "" {
		w.add("project_id = $%d", filter.ProjectID)
	}
	if filter.WorkflowID != "" {
		w.add("workflow_id = $%d", filter.WorkflowID)
	}
	if filter.Stage != "" {
		w.add("current_stage = $%d", filter.Stage)
	}

	total, err := s.count(ctx, "workflow_instances", w)
	if err != nil {
		return nil, 0, err
	}

	query, args := w.page(`SELECT `+instanceColumns+` FROM workflow_instances`, filter.Page)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list workflow instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan workflow instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, total, rows.Err()
}

// ApplyTransition performs the stage compare-and-swap as a single UPDATE
// guarded on current_stage and is_completed. When no row matches, the
// instance is re-read to report why.
func (s *PostgresStore) ApplyTransition(ctx context.Context, id string, record models.TransitionRecord, stageData map[string]interface{}, complete bool) (*models.WorkflowInstance, error) {
	if record.Data == nil {
		record.Data = map[string]interface{}{}
	}
	inst, err := scanInstance(s.db.QueryRow(ctx,
		`UPDATE workflow_instances
		SET current_stage = $3,
			history = history || jsonb_build_array($4::jsonb),
			stage_data = stage_data || $5::jsonb,
			is_completed = $6,
			updated_at = $7
		WHERE id = $1 AND current_stage = $2 AND NOT is_completed
		RETURNING `+instanceColumns,
		id, record.FromStage, record.ToStage, record, jsonObject(stageData), complete, record.Timestamp))
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transition workflow instance: %w", err)
	}

	current, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsCompleted {
		return nil, ErrCompleted
	}
	return nil, ErrStaleState
}

// CompleteInstance marks an instance completed.
func (s *PostgresStore) CompleteInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	inst, err := scanInstance(s.db.QueryRow(ctx,
		`UPDATE workflow_instances SET is_completed = TRUE, updated_at = $2
		WHERE id = $1 AND NOT is_completed
		RETURNING `+instanceColumns,
		id, time.Now().UTC()))
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("complete workflow instance: %w", err)
	}
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrCompleted
}

const ruleColumns = `id, name, description, rule_type, conditions, expression, actions, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*models.BusinessRule, error) {
	var r models.BusinessRule
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.RuleType, &r.Conditions,
		&r.Expression, &r.Actions, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule inserts a business rule.
func (s *PostgresStore) CreateRule(ctx context.Context, r *models.BusinessRule) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO business_rules (`+ruleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Name, r.Description, r.RuleType, jsonObject(r.Conditions), r.Expression,
		jsonObject(r.Actions), r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert business rule: %w", err)
	}
	return nil
}

// GetRule retrieves a business rule by its ID.
func (s *PostgresStore) GetRule(ctx context.Context, id string) (*models.BusinessRule, error) {
	r, err := scanRule(s.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM business_rules WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "select business rule")
	}
	return r, nil
}

// UpdateRule replaces the mutable fields of a business rule.
func (s *PostgresStore) UpdateRule(ctx context.Context, r *models.BusinessRule) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE business_rules SET name = $2, description = $3, rule_type = $4, conditions = $5,
			expression = $6, actions = $7, is_active = $8, updated_at = $9
		WHERE id = $1`,
		r.ID, r.Name, r.Description, r.RuleType, jsonObject(r.Conditions), r.Expression,
		jsonObject(r.Actions), r.IsActive, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update business rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a business rule.
func (s *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM business_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete business rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRules returns matching rules ordered by creation.
func (s *PostgresStore) ListRules(ctx context.Context, filter models.RuleFilter) ([]*models.BusinessRule, int, error) {
	var w where
	if filter.RuleType != "" {
		w.add("rule_type = $%d", filter.RuleType)
	}
	if filter.IsActive != nil {
		w.add("is_active = $%d", *filter.IsActive)
	}

	total, err := s.count(ctx, "business_rules", w)
	if err != nil {
		return nil, 0, err
	}

	query, args := w.page(`SELECT `+ruleColumns+` FROM business_rules`, filter.Page)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list business rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.BusinessRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan business rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, total, rows.Err()
}

func (s *PostgresStore) count(ctx context.Context, table string, w where) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+w.clause(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// where accumulates equality predicates with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w where) page(selectSQL string, p models.Page) (string, []any) {
	p = p.Normalized()
	args := append(append([]any(nil), w.args...), p.Limit, p.Offset)
	query := fmt.Sprintf("%s%s ORDER BY created_at, id LIMIT $%d OFFSET $%d",
		selectSQL, w.clause(), len(args)-1, len(args))
	return query, args
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// jsonObject keeps NULL out of JSONB object columns.
func jsonObject(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func terminalStages(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Repository = (*PostgresStore)(nil)
