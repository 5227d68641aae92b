// Package decision defines the Decision domain entity and its lifecycle.
package decision

import "time"

// Status represents the disposition of a decision.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAutoApproved  Status = "auto_approved"
	StatusPendingReview Status = "pending_review"
	StatusEscalated     Status = "escalated"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusExecuted      Status = "executed"
)

// Context describes the situation an agent proposed an action for.
type Context struct {
	TaskDescription string    `json:"task_description"`
	FinancialImpact float64   `json:"financial_impact"`
	RiskAssessment  string    `json:"risk_assessment,omitempty"`
	Stakeholders    []string  `json:"stakeholders,omitempty"`
	Deadline        time.Time `json:"deadline,omitzero"`
}

// Plan is an ordered implementation plan attached to a recommendation.
type Plan struct {
	Steps            []string `json:"steps"`
	Resources        []string `json:"resources,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	DependsOn        []string `json:"depends_on,omitempty"`
}

// Recommendation is an agent's proposed course of action.
// Immutable once attached to a decision.
type Recommendation struct {
	ID              string   `json:"id"`
	Reasoning       string   `json:"reasoning"`
	Plan            Plan     `json:"plan"`
	RiskAssessment  string   `json:"risk_assessment,omitempty"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
}

// Decision is a proposed action awaiting disposition. Status is owned
// exclusively by the orchestrator; other components reference decisions by ID.
type Decision struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Title           string           `json:"title"`
	Context         Context          `json:"context"`
	Recommendations []Recommendation `json:"recommendations"`
	Confidence      float64          `json:"confidence"`
	Status          Status           `json:"status"`
	Critical        bool             `json:"critical"`
	Resolution      string           `json:"resolution,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
}

// Terminal reports whether the decision has reached a final disposition.
func (d *Decision) Terminal() bool {
	return d.Status == StatusExecuted || d.Status == StatusRejected
}

// AwaitingHuman reports whether the decision is parked for a human reviewer.
func (d *Decision) AwaitingHuman() bool {
	return d.Status == StatusPendingReview || d.Status == StatusEscalated
}

// TopRecommendation returns the first recommendation, which by convention is
// the agent's preferred option. Returns nil if none were attached.
func (d *Decision) TopRecommendation() *Recommendation {
	if len(d.Recommendations) == 0 {
		return nil
	}
	return &d.Recommendations[0]
}

// MultiStakeholder reports whether more than one stakeholder is affected.
// Such decisions get a review workflow in addition to a human task.
func (d *Decision) MultiStakeholder() bool {
	return len(d.Context.Stakeholders) > 1
}
