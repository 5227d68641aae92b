// Package coordinator defines the port to the external swarm coordinator
// that originates decision requests and executes approved actions.
package coordinator

import (
	"context"

	"github.com/revloop/overseer/internal/domain/decision"
)

// Override is an instruction to bypass or correct agent behavior.
type Override struct {
	AgentID      string `json:"agent_id"`
	Action       string `json:"action"`
	AuthorizedBy string `json:"authorized_by"`
	Reason       string `json:"reason,omitempty"`
	Emergency    bool   `json:"emergency"`
}

// Notification is a message delivered to a single agent.
type Notification struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// RetrainRequest carries accumulated learning data to the retraining pipeline.
type RetrainRequest struct {
	PatternCount int    `json:"pattern_count"`
	PatternKey   string `json:"pattern_key"`
	Reason       string `json:"reason"`
}

// Coordinator is the port interface for instructing the agent swarm.
// All calls cross a process boundary and may fail; callers convert failures
// into alerts rather than propagating them as crashes.
type Coordinator interface {
	// Broadcast publishes an event to every agent in the swarm.
	Broadcast(ctx context.Context, event string, payload any) error

	// ExecuteDecision instructs the swarm to carry out an approved decision.
	ExecuteDecision(ctx context.Context, d *decision.Decision) error

	// ExecuteRecommendation instructs the swarm to carry out one
	// recommendation of a decision.
	ExecuteRecommendation(ctx context.Context, decisionID string, rec decision.Recommendation) error

	// ApplyOverride applies a non-emergency agent override.
	ApplyOverride(ctx context.Context, o Override) error

	// EmergencyOverride applies an authorized emergency override immediately.
	EmergencyOverride(ctx context.Context, o Override) error

	// NotifyAgent delivers a notification to a single agent.
	NotifyAgent(ctx context.Context, agentID string, n Notification) error

	// InitiateRetraining hands accumulated learning data to the external
	// retraining pipeline.
	InitiateRetraining(ctx context.Context, req RetrainRequest) error
}
