package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/port/eventbus"
)

// publishEvent marshals payload and publishes it on the bus. Collaborator
// failures never crash the caller: they are logged and, when a registry is
// provided, surfaced as a warning alert.
func publishEvent(ctx context.Context, bus eventbus.Bus, alerts *AlertRegistry, component, subject string, payload any) {
	if bus == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "subject", subject, "error", err)
		return
	}

	if err := bus.Publish(ctx, subject, data); err != nil {
		slog.Warn("event publish failed", "subject", subject, "component", component, "error", err)
		if alerts != nil {
			alerts.Raise(ctx, alert.LevelWarning, component,
				"event publish failed: "+subject,
				map[string]any{"error": err.Error()})
		}
	}
}

// ComponentHealth is one component's answer to the supervisor's health check.
type ComponentHealth struct {
	Name    string         `json:"name"`
	Healthy bool           `json:"healthy"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthReporter is implemented by every supervised component.
type HealthReporter interface {
	Health(ctx context.Context) ComponentHealth
}
