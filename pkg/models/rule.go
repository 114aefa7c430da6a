package models

import "time"

// Rule types used by the seed data. RuleType is free-form.
const (
	RuleTypeValidation   = "validation"
	RuleTypeAutomation   = "automation"
	RuleTypeNotification = "notification"
)

// BusinessRule is a declarative condition/action pair. Conditions are
// matched by equality against an evaluation context; Expression, when set,
// must also evaluate to true for the rule to trigger.
type BusinessRule struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	RuleType    string                 `json:"rule_type"`
	Conditions  map[string]interface{} `json:"conditions"`
	Expression  string                 `json:"expression,omitempty"`
	Actions     map[string]interface{} `json:"actions"`
	IsActive    bool                   `json:"is_active"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// RuleSpec is the payload for creating or replacing a rule.
type RuleSpec struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	RuleType    string                 `json:"rule_type" yaml:"rule_type"`
	Conditions  map[string]interface{} `json:"conditions" yaml:"conditions"`
	Expression  string                 `json:"expression,omitempty" yaml:"expression"`
	Actions     map[string]interface{} `json:"actions" yaml:"actions"`
	IsActive    *bool                  `json:"is_active,omitempty" yaml:"is_active"`
}

// RuleFilter narrows ListRules.
type RuleFilter struct {
	RuleType string
	IsActive *bool
	Page
}

// TriggeredRule is one match returned from rule evaluation.
type TriggeredRule struct {
	RuleID   string                 `json:"rule_id"`
	RuleName string                 `json:"rule_name"`
	RuleType string                 `json:"rule_type"`
	Actions  map[string]interface{} `json:"actions"`
}

// EvaluationResult is the response of a rule evaluation.
type EvaluationResult struct {
	TriggeredRules []TriggeredRule `json:"triggered_rules"`
	TotalTriggered int             `json:"total_triggered"`
}
