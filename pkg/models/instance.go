package models

import "time"

// TransitionRecord is one immutable entry of an instance's history.
type TransitionRecord struct {
	FromStage   string                 `json:"from_stage"`
	ToStage     string                 `json:"to_stage"`
	Timestamp   time.Time              `json:"timestamp"`
	TriggeredBy string                 `json:"triggered_by"`
	Data        map[string]interface{} `json:"data"`
	Notes       string                 `json:"notes,omitempty"`
}

// WorkflowInstance is a live execution of a workflow bound to one project.
// History only grows, and once IsCompleted is set it is never cleared.
type WorkflowInstance struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	ProjectID    string                 `json:"project_id"`
	CurrentStage string                 `json:"current_stage"`
	StageData    map[string]interface{} `json:"stage_data"`
	History      []TransitionRecord     `json:"history"`
	IsCompleted  bool                   `json:"is_completed"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// CreateInstanceRequest binds a new instance to a workflow and a project.
type CreateInstanceRequest struct {
	WorkflowID   string                 `json:"workflow_id"`
	ProjectID    string                 `json:"project_id"`
	InitialStage string                 `json:"initial_stage"`
	StageData    map[string]interface{} `json:"stage_data,omitempty"`
}

// TransitionRequest moves an instance from FromStage to ToStage. FromStage
// must equal the instance's current stage at the time of the update.
type TransitionRequest struct {
	FromStage      string                 `json:"from_stage"`
	ToStage        string                 `json:"to_stage"`
	TransitionData map[string]interface{} `json:"transition_data,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	TriggeredBy    string                 `json:"-"`
}

// InstanceFilter narrows ListInstances. Empty fields match everything.
type InstanceFilter struct {
	ProjectID  string
	WorkflowID string
	Stage      string
	Page
}
