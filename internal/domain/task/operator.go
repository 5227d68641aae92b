package task

import "time"

// OperatorStatus represents a reviewer's current availability.
type OperatorStatus string

const (
	OperatorAvailable   OperatorStatus = "available"
	OperatorBusy        OperatorStatus = "busy"
	OperatorUnavailable OperatorStatus = "unavailable"
)

// Availability describes when an operator works.
type Availability struct {
	Timezone     string   `json:"timezone,omitempty"`
	WorkingHours string   `json:"working_hours,omitempty"` // e.g. "09:00-17:00"
	WorkingDays  []string `json:"working_days,omitempty"`
}

// Performance holds rolling performance metrics for an operator.
// CompletionRate is in [0,1]; AverageQuality is a 0-5 rating.
type Performance struct {
	CompletionRate float64 `json:"completion_rate"`
	AverageQuality float64 `json:"average_quality"`
	TasksCompleted int     `json:"tasks_completed"`
}

// Preferences captures what kinds of work an operator prefers.
type Preferences struct {
	TaskTypes     []string `json:"task_types,omitempty"`
	Complexity    string   `json:"complexity,omitempty"`
	Communication string   `json:"communication,omitempty"`
}

// Operator is a human reviewer in the delegation pool. Workload and status
// are mutated only by the delegation manager.
type Operator struct {
	ID             string         `json:"id"`
	Role           string         `json:"role"`
	Skills         []string       `json:"skills"`
	Expertise      []string       `json:"expertise,omitempty"`
	Availability   Availability   `json:"availability"`
	Performance    Performance    `json:"performance"`
	Preferences    Preferences    `json:"preferences"`
	Status         OperatorStatus `json:"status"`
	Workload       float64        `json:"workload"` // fraction of capacity in use, [0,1]
	LastAssignedAt time.Time      `json:"last_assigned_at,omitzero"`
}

// HasSkill reports whether the operator's skill set contains any of the
// required skills. An empty requirement matches every operator.
func (o *Operator) HasSkill(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, have := range o.Skills {
			if have == want {
				return true
			}
		}
	}
	return false
}
