// Package service contains the application services of the overseer core.
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	adotel "github.com/revloop/overseer/internal/adapter/otel"
	"github.com/revloop/overseer/internal/adapter/ws"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/port/eventbus"
)

// AlertRegistry is the bounded alert store shared by all components and owned
// by the supervisor. Raising never fails: bus or hub trouble is logged, not
// propagated.
type AlertRegistry struct {
	mu        sync.Mutex
	alerts    map[string]*alert.Alert
	order     []string // insertion order, oldest first
	max       int
	retention time.Duration

	bus     eventbus.Bus
	hub     *ws.Hub
	metrics *adotel.Metrics
}

// NewAlertRegistry creates an alert registry bounded to max entries.
// Acknowledged alerts older than retention are dropped by GC.
func NewAlertRegistry(max int, retention time.Duration, bus eventbus.Bus, hub *ws.Hub, metrics *adotel.Metrics) *AlertRegistry {
	return &AlertRegistry{
		alerts:    make(map[string]*alert.Alert),
		max:       max,
		retention: retention,
		bus:       bus,
		hub:       hub,
		metrics:   metrics,
	}
}

// Raise records a new alert and fans it out to the bus and dashboard.
// Critical and error alerts are always logged regardless of log verbosity.
func (r *AlertRegistry) Raise(ctx context.Context, level alert.Level, component, message string, metadata map[string]any) *alert.Alert {
	a := &alert.Alert{
		ID:        uuid.NewString(),
		Level:     level,
		Component: component,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.alerts[a.ID] = a
	r.order = append(r.order, a.ID)
	for len(r.order) > r.max {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.alerts, oldest)
	}
	r.mu.Unlock()

	switch level {
	case alert.LevelCritical, alert.LevelError:
		slog.Error("alert raised", "alert_id", a.ID, "level", level, "component", component, "message", message)
	case alert.LevelWarning:
		slog.Warn("alert raised", "alert_id", a.ID, "component", component, "message", message)
	default:
		slog.Info("alert raised", "alert_id", a.ID, "component", component, "message", message)
	}

	if r.metrics != nil {
		r.metrics.AlertsRaised.Add(ctx, 1, metric.WithAttributes(
			attribute.String("level", string(level)),
			attribute.String("component", component),
		))
	}

	publishEvent(ctx, r.bus, nil, component, eventbus.SubjectAlertCreated, a)
	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, ws.EventAlert, ws.AlertEvent{
			AlertID:   a.ID,
			Level:     string(level),
			Component: component,
			Message:   message,
		})
	}

	return a
}

// Acknowledge marks an alert as acknowledged.
func (r *AlertRegistry) Acknowledge(ctx context.Context, id string) error {
	r.mu.Lock()
	a, ok := r.alerts[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	a.Acknowledged = true
	a.AcknowledgedAt = &now
	ack := *a
	r.mu.Unlock()

	publishEvent(ctx, r.bus, nil, "supervisor", eventbus.SubjectAlertAcknowledged, &ack)
	return nil
}

// List returns all retained alerts, newest first.
func (r *AlertRegistry) List() []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]alert.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Unacknowledged returns the number of alerts still awaiting a human.
func (r *AlertRegistry) Unacknowledged() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, a := range r.alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n
}

// GC drops acknowledged alerts older than the retention window.
// Returns the number of alerts removed.
func (r *AlertRegistry) GC(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		a := r.alerts[id]
		if a != nil && a.Acknowledged && a.AcknowledgedAt != nil && now.Sub(*a.AcknowledgedAt) > r.retention {
			delete(r.alerts, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}
