// Package workflow defines multi-stage review workflow definitions and
// executions.
package workflow

import (
	"fmt"
	"time"
)

// StageKind classifies what a stage asks of its participants.
type StageKind string

const (
	StageReview   StageKind = "review"
	StageApproval StageKind = "approval"
	StageAction   StageKind = "action"
)

// Stage is one step in an ordered approval sequence.
type Stage struct {
	Name             string        `json:"name"`
	Kind             StageKind     `json:"kind"`
	RequiresApproval bool          `json:"requires_approval"`
	ApproverRoles    []string      `json:"approver_roles,omitempty"`
	Timeout          time.Duration `json:"timeout"`
}

// Definition is a named ordered sequence of stages.
type Definition struct {
	Name   string  `json:"name"`
	Stages []Stage `json:"stages"`
}

// Validate checks the definition is runnable.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow definition: name is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("workflow %q: at least one stage is required", d.Name)
	}
	for i, s := range d.Stages {
		switch s.Kind {
		case StageReview, StageApproval, StageAction:
		default:
			return fmt.Errorf("workflow %q stage %d: unknown kind %q", d.Name, i, s.Kind)
		}
		if s.Timeout <= 0 {
			return fmt.Errorf("workflow %q stage %d: timeout must be positive", d.Name, i)
		}
		if s.RequiresApproval && s.Kind == StageAction {
			return fmt.Errorf("workflow %q stage %d: action stages cannot require approval", d.Name, i)
		}
	}
	return nil
}

// ExecStatus represents the overall state of a workflow execution.
type ExecStatus string

const (
	ExecRunning   ExecStatus = "running"
	ExecCompleted ExecStatus = "completed"
	ExecTimedOut  ExecStatus = "timed_out"
	ExecCancelled ExecStatus = "cancelled"
)

// Execution binds a definition to one decision and tracks stage progress.
// CurrentStage is monotonically non-decreasing.
type Execution struct {
	ID             string     `json:"id"`
	DecisionID     string     `json:"decision_id"`
	Definition     Definition `json:"definition"`
	CurrentStage   int        `json:"current_stage"`
	StageStartedAt time.Time  `json:"stage_started_at"`
	// Approvals maps stage index to the set of roles that approved it.
	Approvals   map[int]map[string]bool `json:"approvals"`
	Status      ExecStatus              `json:"status"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// Stage returns the currently running stage, or nil if the execution is done.
func (e *Execution) Stage() *Stage {
	if e.CurrentStage >= len(e.Definition.Stages) {
		return nil
	}
	return &e.Definition.Stages[e.CurrentStage]
}

// StageApproved reports whether every required approver role for the current
// stage has recorded an approval. Stages with no role list need one approval.
func (e *Execution) StageApproved() bool {
	st := e.Stage()
	if st == nil {
		return false
	}
	got := e.Approvals[e.CurrentStage]
	if len(st.ApproverRoles) == 0 {
		return len(got) > 0
	}
	for _, role := range st.ApproverRoles {
		if !got[role] {
			return false
		}
	}
	return true
}

// Approval is one approver's verdict on the current stage of an execution.
type Approval struct {
	Role     string `json:"role"`
	Approver string `json:"approver"`
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
}
