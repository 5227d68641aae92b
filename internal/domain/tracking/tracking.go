// Package tracking defines the entities watched by the progress tracker and
// the periodic snapshots it takes of them.
package tracking

import "time"

// Kind classifies what a tracked entity is.
type Kind string

const (
	KindDecision Kind = "decision"
	KindTask     Kind = "task"
	KindWorkflow Kind = "workflow"
)

// Entity is one unit of in-flight work under observation. Quality and
// Satisfaction are unreported until a value above zero arrives; Risk defaults
// to zero, which is safe.
type Entity struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	Name             string    `json:"name"`
	StartedAt        time.Time `json:"started_at"`
	EstimatedMinutes int       `json:"estimated_minutes"`

	Quality      float64 `json:"quality"`      // 0-5; 0 means not reported yet
	Risk         float64 `json:"risk"`         // 0-1
	Satisfaction float64 `json:"satisfaction"` // 0-1; 0 means not reported yet
}

// Reading carries fresh observed values for a tracked entity. Zero fields
// leave the stored value untouched.
type Reading struct {
	Quality      float64 `json:"quality"`
	Risk         float64 `json:"risk"`
	Satisfaction float64 `json:"satisfaction"`
}

// Snapshot is one cycle's computed view of a tracked entity.
type Snapshot struct {
	EntityID       string    `json:"entity_id"`
	Kind           Kind      `json:"kind"`
	TakenAt        time.Time `json:"taken_at"`
	ElapsedMinutes float64   `json:"elapsed_minutes"`
	OverrunPct     float64   `json:"overrun_pct"` // elapsed over estimate, in percent; 0 without an estimate
	Quality        float64   `json:"quality"`
	Risk           float64   `json:"risk"`
	Satisfaction   float64   `json:"satisfaction"`
	Breaches       []string  `json:"breaches,omitempty"`
}
