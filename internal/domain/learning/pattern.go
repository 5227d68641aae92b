// Package learning defines the decision-pattern records captured for later
// threshold tuning. Recording is append-only; no adaptation happens here.
package learning

import "time"

// Disposition is how a decision was ultimately resolved.
type Disposition string

const (
	DispositionAutoApproved Disposition = "auto_approved"
	DispositionApproved     Disposition = "human_approved"
	DispositionRejected     Disposition = "human_rejected"
	DispositionEscalated    Disposition = "escalated"
	DispositionOverridden   Disposition = "overridden"
)

// Pattern captures one resolved decision for the retraining pipeline.
type Pattern struct {
	ID             string        `json:"id"`
	DecisionID     string        `json:"decision_id"`
	DecisionType   string        `json:"decision_type"`
	Confidence     float64       `json:"confidence"`
	Disposition    Disposition   `json:"disposition"`
	Outcome        string        `json:"outcome,omitempty"`
	TimeToDecision time.Duration `json:"time_to_decision"`
	RecordedAt     time.Time     `json:"recorded_at"`
}
