package models

import (
	"time"
)

// Workflow types seen in the seed data. The field itself is free-form.
const (
	WorkflowTypeSales       = "sales"
	WorkflowTypeSupport     = "support"
	WorkflowTypeDevelopment = "development"
	WorkflowTypeMarketing   = "marketing"
	WorkflowTypeOperations  = "operations"
)

// Stage is one named step of a workflow. Position is the stage's ordinal
// within the workflow and is assigned from its index in Workflow.Stages.
type Stage struct {
	Key      string `json:"key" yaml:"key"`
	Name     string `json:"name" yaml:"name"`
	Position int    `json:"position" yaml:"position"`
}

// Workflow is a reusable template: an ordered set of stages plus an opaque
// rule configuration blob.
type Workflow struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Type           string                 `json:"type"`
	Stages         []Stage                `json:"stages"`
	TerminalStages []string               `json:"terminal_stages,omitempty"`
	Rules          map[string]interface{} `json:"rules,omitempty"`
	IsActive       bool                   `json:"is_active"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// HasStage reports whether key names one of the workflow's stages.
func (w *Workflow) HasStage(key string) bool {
	for _, s := range w.Stages {
		if s.Key == key {
			return true
		}
	}
	return false
}

// IsTerminal reports whether reaching key completes an instance.
func (w *Workflow) IsTerminal(key string) bool {
	for _, t := range w.TerminalStages {
		if t == key {
			return true
		}
	}
	return false
}

// WorkflowSpec is the payload for creating a workflow. IsActive defaults to
// true when omitted.
type WorkflowSpec struct {
	Name           string                 `json:"name" yaml:"name"`
	Description    string                 `json:"description" yaml:"description"`
	Type           string                 `json:"type" yaml:"type"`
	Stages         []Stage                `json:"stages" yaml:"stages"`
	TerminalStages []string               `json:"terminal_stages,omitempty" yaml:"terminal_stages"`
	Rules          map[string]interface{} `json:"rules,omitempty" yaml:"rules"`
	IsActive       *bool                  `json:"is_active,omitempty" yaml:"is_active"`
}

// WorkflowUpdate carries the fields of a partial workflow update. Nil fields
// are left untouched.
type WorkflowUpdate struct {
	Name           *string                 `json:"name,omitempty"`
	Description    *string                 `json:"description,omitempty"`
	Type           *string                 `json:"type,omitempty"`
	Stages         *[]Stage                `json:"stages,omitempty"`
	TerminalStages *[]string               `json:"terminal_stages,omitempty"`
	Rules          *map[string]interface{} `json:"rules,omitempty"`
	IsActive       *bool                   `json:"is_active,omitempty"`
}

// WorkflowFilter narrows ListWorkflows. Zero values match everything.
type WorkflowFilter struct {
	Type     string
	IsActive *bool
	Page
}

// Page is the offset/limit window applied to list queries.
type Page struct {
	Limit  int
	Offset int
}

// DefaultPageLimit is used when a list request does not set a limit.
const DefaultPageLimit = 100

// Normalized returns the page with defaults applied.
func (p Page) Normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
