// Package eventbus defines the message bus port (interface).
package eventbus

import "context"

// Handler processes a message received from the bus.
type Handler func(ctx context.Context, subject string, data []byte) error

// Bus is the port interface for publishing and subscribing to events.
type Bus interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the bus connection immediately.
	Close() error

	// IsConnected reports whether the bus is currently connected.
	IsConnected() bool
}

// Subjects emitted by the core for UI/logging collaborators.
const (
	SubjectDecisionCreated      = "decisions.created"
	SubjectDecisionExecuted     = "decisions.executed"
	SubjectDecisionRejected     = "decisions.rejected"
	SubjectDecisionAutoApproved = "decisions.autoapproved"
	SubjectEscalationTriggered  = "escalations.triggered"

	SubjectTaskCreated   = "tasks.created"
	SubjectTaskAssigned  = "tasks.assigned"
	SubjectTaskCompleted = "tasks.completed"
	SubjectTaskFailed    = "tasks.failed"

	SubjectWorkflowStarted   = "workflows.started"
	SubjectWorkflowCompleted = "workflows.completed"
	SubjectStageTimeout      = "workflows.stage_timeout"

	SubjectAlertCreated      = "alerts.created"
	SubjectAlertAcknowledged = "alerts.acknowledged"

	SubjectRetrainSuggested = "learning.retrain_suggested"

	SubjectEmergencyOverride = "escalations.emergency_override"
)

// Subjects carrying commands to the external swarm coordinator.
const (
	SubjectSwarmRequests      = "swarm.requests.decision"
	SubjectSwarmBroadcast     = "swarm.broadcast"
	SubjectSwarmExecDecision  = "swarm.execute.decision"
	SubjectSwarmExecRecommend = "swarm.execute.recommendation"
	SubjectSwarmOverride      = "swarm.override"
	SubjectSwarmEmergency     = "swarm.override.emergency"
	SubjectSwarmNotify        = "swarm.notify" // swarm.notify.{agent_id}
	SubjectSwarmRetrain       = "swarm.retrain"
)
