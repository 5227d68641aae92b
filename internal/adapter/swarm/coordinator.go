// Package swarm implements the coordinator port over the event bus. Commands
// are published as JSON to swarm.> subjects where the external coordinator
// consumes them.
package swarm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revloop/overseer/internal/domain/decision"
	"github.com/revloop/overseer/internal/port/coordinator"
	"github.com/revloop/overseer/internal/port/eventbus"
)

// Coordinator publishes swarm commands to the event bus.
type Coordinator struct {
	bus eventbus.Bus
}

// NewCoordinator creates a bus-backed coordinator client.
func NewCoordinator(bus eventbus.Bus) *Coordinator {
	return &Coordinator{bus: bus}
}

func (c *Coordinator) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal swarm command: %w", err)
	}
	if err := c.bus.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("swarm command %s: %w", subject, err)
	}
	return nil
}

// Broadcast publishes an event to every agent in the swarm.
func (c *Coordinator) Broadcast(ctx context.Context, event string, payload any) error {
	return c.publish(ctx, eventbus.SubjectSwarmBroadcast, map[string]any{
		"event":   event,
		"payload": payload,
	})
}

// ExecuteDecision instructs the swarm to carry out an approved decision.
func (c *Coordinator) ExecuteDecision(ctx context.Context, d *decision.Decision) error {
	return c.publish(ctx, eventbus.SubjectSwarmExecDecision, d)
}

// ExecuteRecommendation instructs the swarm to carry out one recommendation.
func (c *Coordinator) ExecuteRecommendation(ctx context.Context, decisionID string, rec decision.Recommendation) error {
	return c.publish(ctx, eventbus.SubjectSwarmExecRecommend, map[string]any{
		"decision_id":    decisionID,
		"recommendation": rec,
	})
}

// ApplyOverride applies a non-emergency agent override.
func (c *Coordinator) ApplyOverride(ctx context.Context, o coordinator.Override) error {
	return c.publish(ctx, eventbus.SubjectSwarmOverride, o)
}

// EmergencyOverride applies an authorized emergency override immediately.
func (c *Coordinator) EmergencyOverride(ctx context.Context, o coordinator.Override) error {
	return c.publish(ctx, eventbus.SubjectSwarmEmergency, o)
}

// NotifyAgent delivers a notification to a single agent.
func (c *Coordinator) NotifyAgent(ctx context.Context, agentID string, n coordinator.Notification) error {
	return c.publish(ctx, eventbus.SubjectSwarmNotify+"."+agentID, n)
}

// InitiateRetraining hands accumulated learning data to the retraining
// pipeline.
func (c *Coordinator) InitiateRetraining(ctx context.Context, req coordinator.RetrainRequest) error {
	return c.publish(ctx, eventbus.SubjectSwarmRetrain, req)
}
