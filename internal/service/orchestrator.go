package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	adotel "github.com/revloop/overseer/internal/adapter/otel"
	"github.com/revloop/overseer/internal/adapter/ws"
	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/domain/decision"
	"github.com/revloop/overseer/internal/port/eventbus"
	"github.com/revloop/overseer/internal/port/memorystore"
)

// SubmitRequest carries a proposed action into the orchestrator.
type SubmitRequest struct {
	Type            string                    `json:"type"`
	Title           string                    `json:"title"`
	Context         decision.Context          `json:"context"`
	Recommendations []decision.Recommendation `json:"recommendations"`
	Confidence      float64                   `json:"confidence"`
	Critical        bool                      `json:"critical"`
	// RequireHuman suppresses the auto-approval branch regardless of
	// confidence. Set by the swarm boundary when its confidence bands
	// demand a human disposition.
	RequireHuman bool `json:"require_human"`
}

// Orchestrator owns the decision lifecycle and the confidence-based routing
// rules. It is the only component that mutates decision status; the workflow
// engine and HTTP surface request transitions through its exported methods.
type Orchestrator struct {
	cfg     config.Orchestrator
	store   memorystore.Store
	bus     eventbus.Bus
	alerts  *AlertRegistry
	hub     *ws.Hub
	metrics *adotel.Metrics

	mu      sync.Mutex
	active  map[string]*decision.Decision // non-terminal decisions by ID
	history []*decision.Decision          // terminal decisions, oldest first, bounded
}

// NewOrchestrator creates the decision orchestrator.
func NewOrchestrator(cfg config.Orchestrator, store memorystore.Store, bus eventbus.Bus, alerts *AlertRegistry, hub *ws.Hub, metrics *adotel.Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		bus:     bus,
		alerts:  alerts,
		hub:     hub,
		metrics: metrics,
		active:  make(map[string]*decision.Decision),
	}
}

// Submit routes a proposed action. Routing rule, in priority order: a
// critical flag (when critical decisions require approval) or financial
// impact at or above the configured threshold forces pending_review; then
// confidence at or above the auto-approval threshold auto-approves;
// confidence at or below the escalation threshold escalates; anything else
// goes to standard human review.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*decision.Decision, error) {
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, fmt.Errorf("confidence must be in [0,1], got %v", req.Confidence)
	}
	if len(req.Recommendations) == 0 {
		return nil, fmt.Errorf("at least one recommendation is required")
	}

	d := &decision.Decision{
		ID:              uuid.NewString(),
		Type:            req.Type,
		Title:           req.Title,
		Context:         req.Context,
		Recommendations: req.Recommendations,
		Confidence:      req.Confidence,
		Critical:        req.Critical,
		CreatedAt:       time.Now().UTC(),
	}

	ctx, span := adotel.StartRoutingSpan(ctx, d.ID, d.Type, d.Confidence)
	defer span.End()

	switch {
	case (o.cfg.CriticalRequiresApproval && req.Critical) ||
		req.Context.FinancialImpact >= o.cfg.FinancialImpactThreshold:
		d.Status = decision.StatusPendingReview
	case req.Confidence >= o.cfg.AutoApprovalThreshold && !req.RequireHuman:
		d.Status = decision.StatusAutoApproved
	case req.Confidence <= o.cfg.EscalationThreshold:
		d.Status = decision.StatusEscalated
	default:
		d.Status = decision.StatusPendingReview
	}

	o.mu.Lock()
	o.active[d.ID] = d
	o.mu.Unlock()

	slog.Info("decision routed",
		"decision_id", d.ID,
		"type", d.Type,
		"confidence", d.Confidence,
		"critical", d.Critical,
		"status", d.Status,
	)

	if o.metrics != nil {
		o.metrics.DecisionsRouted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(d.Status)),
		))
	}

	o.persist(ctx, d)
	publishEvent(ctx, o.bus, o.alerts, "orchestrator", eventbus.SubjectDecisionCreated, d)
	if d.Status == decision.StatusEscalated {
		publishEvent(ctx, o.bus, o.alerts, "orchestrator", eventbus.SubjectEscalationTriggered, d)
	}
	o.broadcast(ctx, d)

	return o.snapshot(d), nil
}

// Get returns a copy of the decision with the given ID.
func (o *Orchestrator) Get(id string) (*decision.Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if d, ok := o.active[id]; ok {
		return o.snapshotLocked(d), nil
	}
	for _, d := range o.history {
		if d.ID == id {
			return o.snapshotLocked(d), nil
		}
	}
	return nil, domain.ErrNotFound
}

// Pending returns all decisions currently awaiting a human.
func (o *Orchestrator) Pending() []*decision.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []*decision.Decision
	for _, d := range o.active {
		if d.AwaitingHuman() {
			out = append(out, o.snapshotLocked(d))
		}
	}
	return out
}

// History returns the retained terminal decisions, oldest first.
func (o *Orchestrator) History() []*decision.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*decision.Decision, len(o.history))
	for i, d := range o.history {
		out[i] = o.snapshotLocked(d)
	}
	return out
}

// Approve transitions a decision awaiting a human to approved. Used by the
// workflow engine when every stage has passed, and by direct operator action.
func (o *Orchestrator) Approve(ctx context.Context, id string) error {
	return o.transition(ctx, id, decision.StatusApproved, "",
		decision.StatusPendingReview, decision.StatusEscalated)
}

// Execute marks a decision executed. Permitted from the human-approved,
// awaiting-human, and auto-approved states; anything else is an invalid
// transition.
func (o *Orchestrator) Execute(ctx context.Context, id string) error {
	return o.transition(ctx, id, decision.StatusExecuted, "",
		decision.StatusPendingReview, decision.StatusEscalated,
		decision.StatusApproved, decision.StatusAutoApproved)
}

// Reject marks a decision rejected with the given reason.
func (o *Orchestrator) Reject(ctx context.Context, id, reason string) error {
	return o.transition(ctx, id, decision.StatusRejected, reason,
		decision.StatusPendingReview, decision.StatusEscalated, decision.StatusApproved)
}

// Escalate moves a pending review onto the expert path. Used by the workflow
// engine on stage timeout.
func (o *Orchestrator) Escalate(ctx context.Context, id, reason string) error {
	return o.transition(ctx, id, decision.StatusEscalated, reason,
		decision.StatusPendingReview)
}

// ScanOverdue escalates standard reviews that have sat unresolved past the
// configured review timeout. Run by the supervisor's scheduler; a review that
// resolves while the scan is in flight is left alone by the transition guard.
func (o *Orchestrator) ScanOverdue(ctx context.Context, now time.Time) {
	cutoff := now.Add(-o.cfg.ReviewTimeout)

	o.mu.Lock()
	var overdue []string
	for _, d := range o.active {
		if d.Status == decision.StatusPendingReview && d.CreatedAt.Before(cutoff) {
			overdue = append(overdue, d.ID)
		}
	}
	o.mu.Unlock()

	for _, id := range overdue {
		if err := o.Escalate(ctx, id, "review timeout exceeded"); err != nil {
			continue
		}
		if o.alerts != nil {
			o.alerts.Raise(ctx, alert.LevelWarning, "orchestrator",
				"pending review timed out, escalated",
				map[string]any{"decision_id": id, "timeout": o.cfg.ReviewTimeout.String()})
		}
	}
}

// transition applies a status change if the decision is in one of the
// allowed source states. Terminal transitions move the decision into the
// bounded history.
func (o *Orchestrator) transition(ctx context.Context, id string, to decision.Status, reason string, from ...decision.Status) error {
	o.mu.Lock()
	d, ok := o.active[id]
	if !ok {
		o.mu.Unlock()
		// Terminal decisions are kept in history; report the right error.
		for _, h := range o.history {
			if h.ID == id {
				return fmt.Errorf("decision %s is %s: %w", id, h.Status, domain.ErrInvalidTransition)
			}
		}
		return domain.ErrNotFound
	}

	allowed := false
	for _, f := range from {
		if d.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		status := d.Status
		o.mu.Unlock()
		return fmt.Errorf("decision %s is %s, cannot become %s: %w", id, status, to, domain.ErrInvalidTransition)
	}

	d.Status = to
	if reason != "" {
		d.Resolution = reason
	}
	if d.Terminal() {
		now := time.Now().UTC()
		d.ResolvedAt = &now
		delete(o.active, id)
		o.history = append(o.history, d)
		if len(o.history) > o.cfg.HistoryLimit {
			o.history = o.history[len(o.history)-o.cfg.HistoryLimit:]
		}
	}
	snap := o.snapshotLocked(d)
	o.mu.Unlock()

	slog.Info("decision transitioned", "decision_id", id, "status", to, "reason", reason)

	if snap.Terminal() && o.metrics != nil {
		o.metrics.TimeToDecision.Record(ctx, snap.ResolvedAt.Sub(snap.CreatedAt).Seconds(),
			metric.WithAttributes(attribute.String("status", string(to))))
		switch to {
		case decision.StatusExecuted:
			o.metrics.DecisionsExecuted.Add(ctx, 1)
		case decision.StatusRejected:
			o.metrics.DecisionsRejected.Add(ctx, 1)
		}
	}

	o.persist(ctx, snap)
	switch to {
	case decision.StatusExecuted:
		publishEvent(ctx, o.bus, o.alerts, "orchestrator", eventbus.SubjectDecisionExecuted, snap)
	case decision.StatusRejected:
		publishEvent(ctx, o.bus, o.alerts, "orchestrator", eventbus.SubjectDecisionRejected, snap)
	case decision.StatusEscalated:
		publishEvent(ctx, o.bus, o.alerts, "orchestrator", eventbus.SubjectEscalationTriggered, snap)
	}
	o.broadcast(ctx, snap)

	return nil
}

// persist writes the decision's audit record to the memory store.
func (o *Orchestrator) persist(ctx context.Context, d *decision.Decision) {
	if o.store == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		slog.Error("marshal decision audit", "decision_id", d.ID, "error", err)
		return
	}
	key := memorystore.Key("hitl", "decision", d.ID)
	if err := o.store.Store(ctx, key, data); err != nil {
		slog.Warn("decision audit write failed", "decision_id", d.ID, "error", err)
		if o.alerts != nil {
			o.alerts.Raise(ctx, alert.LevelWarning, "orchestrator",
				"decision audit write failed",
				map[string]any{"decision_id": d.ID, "error": err.Error()})
		}
	}
}

func (o *Orchestrator) broadcast(ctx context.Context, d *decision.Decision) {
	if o.hub == nil {
		return
	}
	o.hub.BroadcastEvent(ctx, ws.EventDecisionStatus, ws.DecisionStatusEvent{
		DecisionID: d.ID,
		Type:       d.Type,
		Status:     string(d.Status),
		Confidence: d.Confidence,
	})
}

// snapshot returns a defensive copy for callers outside the lock.
func (o *Orchestrator) snapshot(d *decision.Decision) *decision.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked(d)
}

func (o *Orchestrator) snapshotLocked(d *decision.Decision) *decision.Decision {
	cp := *d
	return &cp
}

// Health reports orchestrator status for the supervisor's health loop.
func (o *Orchestrator) Health(_ context.Context) ComponentHealth {
	o.mu.Lock()
	pending := 0
	for _, d := range o.active {
		if d.AwaitingHuman() {
			pending++
		}
	}
	total := len(o.active)
	retained := len(o.history)
	o.mu.Unlock()

	return ComponentHealth{
		Name:    "orchestrator",
		Healthy: true,
		Details: map[string]any{
			"active_decisions":  total,
			"awaiting_human":    pending,
			"history_retained":  retained,
			"auto_threshold":    o.cfg.AutoApprovalThreshold,
			"escalation_bound":  o.cfg.EscalationThreshold,
			"financial_cutover": o.cfg.FinancialImpactThreshold,
		},
	}
}
