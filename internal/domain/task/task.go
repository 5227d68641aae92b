// Package task defines the HumanTask and Operator domain entities.
package task

import "time"

// Status represents the current state of a human task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority orders tasks for human attention.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Task is a unit of work delegated to a person. Created and mutated only by
// the delegation manager; terminal states are completed and failed.
type Task struct {
	ID               string    `json:"id"`
	DecisionID       string    `json:"decision_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`
	Priority         Priority  `json:"priority"`
	RequiredSkills   []string  `json:"required_skills,omitempty"`
	RequiredRole     string    `json:"required_role,omitempty"`
	Complexity       string    `json:"complexity,omitempty"`
	Status           Status    `json:"status"`
	OperatorID       string    `json:"operator_id,omitempty"`
	Deadline         time.Time `json:"deadline,omitzero"`
	EstimatedEffort  float64   `json:"estimated_effort"` // fraction of one operator's capacity
	EstimatedMinutes int       `json:"estimated_minutes"`
	ActualMinutes    int       `json:"actual_minutes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// CreateRequest holds the fields needed to create a new human task.
type CreateRequest struct {
	DecisionID       string    `json:"decision_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Type             string    `json:"type"`
	Priority         Priority  `json:"priority"`
	RequiredSkills   []string  `json:"required_skills,omitempty"`
	RequiredRole     string    `json:"required_role,omitempty"`
	Complexity       string    `json:"complexity,omitempty"`
	Deadline         time.Time `json:"deadline,omitzero"`
	EstimatedEffort  float64   `json:"estimated_effort"`
	EstimatedMinutes int       `json:"estimated_minutes"`
}

// Outcome reports how an assigned task ended.
type Outcome struct {
	Success       bool    `json:"success"`
	Quality       float64 `json:"quality"` // 0-5 reviewer-style rating
	ActualMinutes int     `json:"actual_minutes"`
	Notes         string  `json:"notes,omitempty"`
}
