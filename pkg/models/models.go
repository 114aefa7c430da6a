// Package models defines the domain models for the projectflow service
package models

import (
	"time"
)

// Statistics is a read-only snapshot derived from the workflow, instance and
// rule stores. The three stores are read independently, so the figures are
// not guaranteed to be mutually consistent.
type Statistics struct {
	TotalWorkflows     int            `json:"total_workflows"`
	ActiveWorkflows    int            `json:"active_workflows"`
	WorkflowsByType    map[string]int `json:"workflows_by_type"`
	TotalInstances     int            `json:"total_instances"`
	CompletedInstances int            `json:"completed_instances"`
	ActiveInstances    int            `json:"active_instances"`
	CompletionRate     float64        `json:"completion_rate"`
	InstancesByStage   map[string]int `json:"instances_by_stage"`
	TotalRules         int            `json:"total_rules"`
	ActiveRules        int            `json:"active_rules"`
	RulesByType        map[string]int `json:"rules_by_type"`
	RecentWorkflows    []*Workflow    `json:"recent_workflows"`
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	TraceID  string         `json:"trace_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// ListResponse wraps a page of list results.
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
