package ws

// Event type constants for WebSocket messages pushed to the dashboard.
const (
	EventDecisionStatus = "decision.status"
	EventTaskStatus     = "task.status"
	EventWorkflowStage  = "workflow.stage"
	EventAlert          = "alert"
	EventSystemStatus   = "system.status"
)

// DecisionStatusEvent is broadcast when a decision's disposition changes.
type DecisionStatusEvent struct {
	DecisionID string  `json:"decision_id"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}

// TaskStatusEvent is broadcast when a human task's status changes.
type TaskStatusEvent struct {
	TaskID     string `json:"task_id"`
	DecisionID string `json:"decision_id,omitempty"`
	Status     string `json:"status"`
	OperatorID string `json:"operator_id,omitempty"`
}

// WorkflowStageEvent is broadcast when a workflow execution advances,
// completes, times out, or is cancelled.
type WorkflowStageEvent struct {
	ExecutionID string `json:"execution_id"`
	DecisionID  string `json:"decision_id"`
	Stage       int    `json:"stage"`
	StageName   string `json:"stage_name,omitempty"`
	Status      string `json:"status"`
}

// AlertEvent is broadcast when an alert is raised or acknowledged.
type AlertEvent struct {
	AlertID   string `json:"alert_id"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// SystemStatusEvent is broadcast after every supervisor health check.
type SystemStatusEvent struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}
