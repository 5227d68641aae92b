package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "overseer"

// Metrics holds all overseer metric instruments.
type Metrics struct {
	DecisionsRouted    metric.Int64Counter
	DecisionsExecuted  metric.Int64Counter
	DecisionsRejected  metric.Int64Counter
	TasksAssigned      metric.Int64Counter
	TasksUnassignable  metric.Int64Counter
	AlertsRaised       metric.Int64Counter
	OverrideAttempts   metric.Int64Counter
	TimeToDecision     metric.Float64Histogram
	AssignmentScore    metric.Float64Histogram
	WorkflowStageTimes metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.DecisionsRouted, err = meter.Int64Counter("overseer.decisions.routed",
		metric.WithDescription("Decisions routed, by resulting status"))
	if err != nil {
		return nil, err
	}

	m.DecisionsExecuted, err = meter.Int64Counter("overseer.decisions.executed",
		metric.WithDescription("Decisions executed by the swarm"))
	if err != nil {
		return nil, err
	}

	m.DecisionsRejected, err = meter.Int64Counter("overseer.decisions.rejected",
		metric.WithDescription("Decisions rejected"))
	if err != nil {
		return nil, err
	}

	m.TasksAssigned, err = meter.Int64Counter("overseer.tasks.assigned",
		metric.WithDescription("Human tasks assigned to operators"))
	if err != nil {
		return nil, err
	}

	m.TasksUnassignable, err = meter.Int64Counter("overseer.tasks.unassignable",
		metric.WithDescription("Assignment attempts with no eligible operator"))
	if err != nil {
		return nil, err
	}

	m.AlertsRaised, err = meter.Int64Counter("overseer.alerts.raised",
		metric.WithDescription("Alerts raised, by level"))
	if err != nil {
		return nil, err
	}

	m.OverrideAttempts, err = meter.Int64Counter("overseer.overrides.attempts",
		metric.WithDescription("Emergency override attempts, by outcome"))
	if err != nil {
		return nil, err
	}

	m.TimeToDecision, err = meter.Float64Histogram("overseer.decision.time_to_decision_seconds",
		metric.WithDescription("Seconds from submission to terminal status"))
	if err != nil {
		return nil, err
	}

	m.AssignmentScore, err = meter.Float64Histogram("overseer.assignment.score",
		metric.WithDescription("Weighted score of the chosen operator"))
	if err != nil {
		return nil, err
	}

	m.WorkflowStageTimes, err = meter.Float64Histogram("overseer.workflow.stage_seconds",
		metric.WithDescription("Seconds spent per workflow stage"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
