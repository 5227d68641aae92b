package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "overseer"

// StartRoutingSpan starts a span for routing one submitted decision.
func StartRoutingSpan(ctx context.Context, decisionID, decisionType string, confidence float64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "decision.route",
		trace.WithAttributes(
			attribute.String("decision.id", decisionID),
			attribute.String("decision.type", decisionType),
			attribute.Float64("decision.confidence", confidence),
		),
	)
}

// StartAssignmentSpan starts a span for one task assignment attempt.
func StartAssignmentSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.assign",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
		),
	)
}

// StartOverrideSpan starts a span for an emergency override attempt.
func StartOverrideSpan(ctx context.Context, agentID, role string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "swarm.emergency_override",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("override.role", role),
		),
	)
}
