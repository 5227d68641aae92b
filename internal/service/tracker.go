package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/revloop/overseer/internal/adapter/ristretto"
	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/domain/tracking"
	"github.com/revloop/overseer/internal/port/memorystore"
)

// Breach kinds raised by the snapshot job.
const (
	breachTimeOverrun  = "time_overrun"
	breachQualityLow   = "quality_below"
	breachRiskHigh     = "risk_above"
	breachSatisfaction = "satisfaction_below"
)

// Tracker watches in-flight work and raises threshold alerts on a periodic
// snapshot cycle. Breaches are deduplicated per entity and kind for one cycle
// so a persisting breach re-alerts on the next snapshot, not on every one.
type Tracker struct {
	cfg    config.Tracker
	store  memorystore.Store
	alerts *AlertRegistry
	dedup  *ristretto.Dedup

	mu       sync.Mutex
	entities map[string]*tracking.Entity
}

// NewTracker creates the progress tracker.
func NewTracker(cfg config.Tracker, store memorystore.Store, alerts *AlertRegistry, dedup *ristretto.Dedup) *Tracker {
	return &Tracker{
		cfg:      cfg,
		store:    store,
		alerts:   alerts,
		dedup:    dedup,
		entities: make(map[string]*tracking.Entity),
	}
}

// Track puts an entity under observation. Re-tracking an ID replaces the
// previous registration.
func (t *Tracker) Track(e tracking.Entity) error {
	if e.ID == "" {
		return fmt.Errorf("tracked entity needs an ID")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}

	t.mu.Lock()
	t.entities[e.ID] = &e
	t.mu.Unlock()

	slog.Info("tracking entity", "entity_id", e.ID, "kind", e.Kind, "name", e.Name)
	return nil
}

// Untrack stops observing an entity and clears its breach dedup state so a
// later re-track starts fresh.
func (t *Tracker) Untrack(id string) error {
	t.mu.Lock()
	e, ok := t.entities[id]
	if ok {
		delete(t.entities, id)
	}
	t.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}

	if t.dedup != nil {
		for _, kind := range []string{breachTimeOverrun, breachQualityLow, breachRiskHigh, breachSatisfaction} {
			t.dedup.Forget(dedupKey(e.ID, kind))
		}
	}
	slog.Info("untracked entity", "entity_id", id, "kind", e.Kind)
	return nil
}

// Update merges fresh readings into a tracked entity. Zero fields in the
// reading leave the stored value alone.
func (t *Tracker) Update(id string, r tracking.Reading) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entities[id]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Quality > 0 {
		e.Quality = r.Quality
	}
	if r.Risk > 0 {
		e.Risk = r.Risk
	}
	if r.Satisfaction > 0 {
		e.Satisfaction = r.Satisfaction
	}
	return nil
}

// Tracked returns copies of everything under observation.
func (t *Tracker) Tracked() []tracking.Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]tracking.Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, *e)
	}
	return out
}

// SnapshotAll takes one snapshot per tracked entity, persists it, and raises
// alerts for threshold breaches. Registered as a supervisor scheduler job.
func (t *Tracker) SnapshotAll(ctx context.Context, now time.Time) {
	t.mu.Lock()
	entities := make([]tracking.Entity, 0, len(t.entities))
	for _, e := range t.entities {
		entities = append(entities, *e)
	}
	t.mu.Unlock()

	for i := range entities {
		snap := t.snapshot(&entities[i], now)
		t.persist(ctx, &snap)
		t.raiseBreaches(ctx, &entities[i], &snap)
	}
	if len(entities) > 0 {
		slog.Debug("progress snapshot cycle complete", "entities", len(entities))
	}
}

// snapshot computes one cycle's view of an entity, including which thresholds
// it currently breaches. Quality and satisfaction are only judged once a
// value has been reported.
func (t *Tracker) snapshot(e *tracking.Entity, now time.Time) tracking.Snapshot {
	snap := tracking.Snapshot{
		EntityID:       e.ID,
		Kind:           e.Kind,
		TakenAt:        now,
		ElapsedMinutes: now.Sub(e.StartedAt).Minutes(),
		Quality:        e.Quality,
		Risk:           e.Risk,
		Satisfaction:   e.Satisfaction,
	}

	th := t.cfg.Thresholds
	if e.EstimatedMinutes > 0 {
		snap.OverrunPct = (snap.ElapsedMinutes - float64(e.EstimatedMinutes)) / float64(e.EstimatedMinutes) * 100
		if snap.OverrunPct >= th.TimeOverrunPct {
			snap.Breaches = append(snap.Breaches, breachTimeOverrun)
		}
	}
	if e.Quality > 0 && e.Quality < th.QualityBelow {
		snap.Breaches = append(snap.Breaches, breachQualityLow)
	}
	if e.Risk > th.RiskAbove {
		snap.Breaches = append(snap.Breaches, breachRiskHigh)
	}
	if e.Satisfaction > 0 && e.Satisfaction < th.SatisfactionBelow {
		snap.Breaches = append(snap.Breaches, breachSatisfaction)
	}
	return snap
}

// raiseBreaches turns a snapshot's breaches into alerts, once per entity and
// breach kind per snapshot interval.
func (t *Tracker) raiseBreaches(ctx context.Context, e *tracking.Entity, snap *tracking.Snapshot) {
	for _, kind := range snap.Breaches {
		if t.dedup != nil && !t.dedup.FirstSeen(dedupKey(e.ID, kind), t.cfg.SnapshotInterval) {
			continue
		}

		level := alert.LevelWarning
		var msg string
		switch kind {
		case breachTimeOverrun:
			msg = fmt.Sprintf("%s %q is %.0f%% over its %dm estimate", e.Kind, e.Name, snap.OverrunPct, e.EstimatedMinutes)
		case breachQualityLow:
			level = alert.LevelError
			msg = fmt.Sprintf("%s %q quality %.1f is below %.1f", e.Kind, e.Name, snap.Quality, t.cfg.Thresholds.QualityBelow)
		case breachRiskHigh:
			msg = fmt.Sprintf("%s %q risk %.2f exceeds %.2f", e.Kind, e.Name, snap.Risk, t.cfg.Thresholds.RiskAbove)
		case breachSatisfaction:
			msg = fmt.Sprintf("%s %q stakeholder satisfaction %.2f is below %.2f", e.Kind, e.Name, snap.Satisfaction, t.cfg.Thresholds.SatisfactionBelow)
		}

		if t.alerts != nil {
			t.alerts.Raise(ctx, level, "tracker", msg, map[string]any{
				"entity_id": e.ID,
				"kind":      string(e.Kind),
				"breach":    kind,
			})
		}
	}
}

func (t *Tracker) persist(ctx context.Context, snap *tracking.Snapshot) {
	if t.store == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("marshal progress snapshot", "entity_id", snap.EntityID, "error", err)
		return
	}
	key := memorystore.Key("hitl", "snapshot", snap.EntityID)
	if err := t.store.Store(ctx, key, data); err != nil {
		slog.Warn("snapshot write failed", "entity_id", snap.EntityID, "error", err)
	}
}

func dedupKey(id, breach string) string {
	return id + ":" + breach
}

// Close releases the breach dedup cache.
func (t *Tracker) Close() {
	if t.dedup != nil {
		t.dedup.Close()
	}
}

// Health reports tracker status for the supervisor's health loop.
func (t *Tracker) Health(_ context.Context) ComponentHealth {
	t.mu.Lock()
	tracked := len(t.entities)
	t.mu.Unlock()

	return ComponentHealth{
		Name:    "tracker",
		Healthy: true,
		Details: map[string]any{
			"tracked_entities":  tracked,
			"snapshot_interval": t.cfg.SnapshotInterval.String(),
		},
	}
}
