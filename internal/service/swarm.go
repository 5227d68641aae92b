package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	adotel "github.com/revloop/overseer/internal/adapter/otel"
	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/domain/decision"
	"github.com/revloop/overseer/internal/domain/learning"
	"github.com/revloop/overseer/internal/domain/task"
	"github.com/revloop/overseer/internal/domain/tracking"
	"github.com/revloop/overseer/internal/domain/workflow"
	"github.com/revloop/overseer/internal/port/coordinator"
	"github.com/revloop/overseer/internal/port/eventbus"
	"github.com/revloop/overseer/internal/port/memorystore"
	"github.com/revloop/overseer/internal/resilience"
)

// DecisionRequest is a proposed action arriving from the agent swarm.
type DecisionRequest struct {
	AgentID         string                    `json:"agent_id"`
	Type            string                    `json:"type"`
	Title           string                    `json:"title"`
	Urgency         string                    `json:"urgency"` // low|medium|high|critical
	Confidence      float64                   `json:"confidence"`
	Critical        bool                      `json:"critical"`
	Strategic       bool                      `json:"strategic"`
	FinancialImpact float64                   `json:"financial_impact"`
	Stakeholders    []string                  `json:"stakeholders,omitempty"`
	Description     string                    `json:"description,omitempty"`
	RiskAssessment  string                    `json:"risk_assessment,omitempty"`
	RiskScore       float64                   `json:"risk_score"` // 0-1

	Recommendations []decision.Recommendation `json:"recommendations"`
	Deadline        time.Time                 `json:"deadline,omitzero"`
}

// Outcome tells the requesting agent what happened to its decision request.
type Outcome struct {
	DecisionID string          `json:"decision_id"`
	Status     decision.Status `json:"status"`
	Executed   bool            `json:"executed"`
	TaskID     string          `json:"task_id,omitempty"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// OverrideRequest asks for an immediate emergency intervention on an agent.
type OverrideRequest struct {
	AgentID      string    `json:"agent_id"`
	Action       string    `json:"action"`
	AuthorizedBy string    `json:"authorized_by"`
	Role         string    `json:"role"`
	Reason       string    `json:"reason"`
	RequestedAt  time.Time `json:"requested_at"`
}

// Swarm is the boundary between the agent swarm and the human-in-the-loop
// core. It routes incoming decision requests through the orchestrator, spins
// up human tasks and review workflows for anything a human must see, guards
// coordinator calls with a circuit breaker, and records resolution patterns
// for the retraining pipeline.
type Swarm struct {
	cfg     config.Swarm
	orch    *Orchestrator
	deleg   *Delegation
	wf      *Workflow
	tracker *Tracker
	coord   coordinator.Coordinator
	bus     eventbus.Bus
	store   memorystore.Store
	alerts  *AlertRegistry
	breaker *resilience.Breaker
	metrics *adotel.Metrics

	mu            sync.Mutex
	patterns      []learning.Pattern
	sinceSuggest  int // patterns recorded since the last retrain suggestion
	totalRecorded int
}

// NewSwarm creates the swarm integration layer. Every core component is a
// hard dependency; construction fails fast on a missing one.
func NewSwarm(cfg config.Swarm, orch *Orchestrator, deleg *Delegation, wf *Workflow, tracker *Tracker, coord coordinator.Coordinator, bus eventbus.Bus, store memorystore.Store, alerts *AlertRegistry, breaker *resilience.Breaker, metrics *adotel.Metrics) (*Swarm, error) {
	switch {
	case orch == nil:
		return nil, fmt.Errorf("swarm: orchestrator: %w", domain.ErrDependencyMissing)
	case deleg == nil:
		return nil, fmt.Errorf("swarm: delegation: %w", domain.ErrDependencyMissing)
	case wf == nil:
		return nil, fmt.Errorf("swarm: workflow: %w", domain.ErrDependencyMissing)
	case tracker == nil:
		return nil, fmt.Errorf("swarm: tracker: %w", domain.ErrDependencyMissing)
	case coord == nil:
		return nil, fmt.Errorf("swarm: coordinator: %w", domain.ErrDependencyMissing)
	}
	return &Swarm{
		cfg:     cfg,
		orch:    orch,
		deleg:   deleg,
		wf:      wf,
		tracker: tracker,
		coord:   coord,
		bus:     bus,
		store:   store,
		alerts:  alerts,
		breaker: breaker,
		metrics: metrics,
	}, nil
}

// Listen subscribes to decision requests arriving over the bus so agents can
// submit without going through the HTTP surface. Returns the cancel function.
func (s *Swarm) Listen(ctx context.Context) (func(), error) {
	if s.bus == nil {
		return func() {}, nil
	}
	return s.bus.Subscribe(ctx, eventbus.SubjectSwarmRequests, func(ctx context.Context, subject string, data []byte) error {
		var req DecisionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Warn("malformed swarm decision request", "error", err)
			return nil // poison message, do not redeliver
		}
		_, err := s.HandleDecisionRequest(ctx, req)
		return err
	})
}

// HandleDecisionRequest routes a swarm decision request through the
// orchestrator and acts on the resulting status: auto-approvals execute the
// top recommendation through the coordinator, anything awaiting a human gets
// a task (and, for strategic or multi-stakeholder decisions, a review
// workflow) and goes under progress tracking. The swarm's confidence bands
// gate on top of the orchestrator's thresholds: below the auto-approve band
// a decision never auto-executes, and at or below the escalation band it
// goes straight to the expert path.
func (s *Swarm) HandleDecisionRequest(ctx context.Context, req DecisionRequest) (*Outcome, error) {
	if len(req.Recommendations) == 0 {
		return nil, fmt.Errorf("decision request from %s has no recommendations", req.AgentID)
	}

	d, err := s.orch.Submit(ctx, SubmitRequest{
		Type:  req.Type,
		Title: req.Title,
		Context: decision.Context{
			TaskDescription: req.Description,
			FinancialImpact: req.FinancialImpact,
			RiskAssessment:  req.RiskAssessment,
			Stakeholders:    req.Stakeholders,
			Deadline:        req.Deadline,
		},
		Recommendations: req.Recommendations,
		Confidence:      req.Confidence,
		Critical:        req.Critical,
		RequireHuman:    req.Confidence < s.cfg.Confidence.AutoApprove,
	})
	if err != nil {
		return nil, fmt.Errorf("submit swarm decision: %w", err)
	}

	// The escalation band can sit above the orchestrator's own threshold;
	// push borderline reviews onto the expert path.
	if d.Status == decision.StatusPendingReview && req.Confidence <= s.cfg.Confidence.Escalate {
		if err := s.orch.Escalate(ctx, d.ID, "confidence below escalation band"); err == nil {
			d.Status = decision.StatusEscalated
		}
	}

	out := &Outcome{DecisionID: d.ID, Status: d.Status}

	switch d.Status {
	case decision.StatusAutoApproved:
		s.autoExecute(ctx, d, out)
	case decision.StatusPendingReview, decision.StatusEscalated:
		s.routeToHumans(ctx, req, d, out)
	}
	return out, nil
}

// autoExecute carries out the top recommendation of an auto-approved
// decision. A coordinator failure leaves the decision auto_approved for a
// later manual execute rather than failing the request.
func (s *Swarm) autoExecute(ctx context.Context, d *decision.Decision, out *Outcome) {
	rec := d.TopRecommendation()
	if rec == nil {
		out.Message = "auto-approved decision has no recommendation to execute"
		return
	}

	err := s.guard(func() error {
		return s.coord.ExecuteRecommendation(ctx, d.ID, *rec)
	})
	if err != nil {
		slog.Warn("auto-approved execution failed", "decision_id", d.ID, "error", err)
		if s.alerts != nil {
			s.alerts.Raise(ctx, alert.LevelError, "swarm",
				"coordinator rejected auto-approved execution",
				map[string]any{"decision_id": d.ID, "error": err.Error()})
		}
		out.Message = "execution deferred: " + err.Error()
		return
	}

	if err := s.orch.Execute(ctx, d.ID); err != nil {
		slog.Warn("mark auto-approved decision executed", "decision_id", d.ID, "error", err)
		out.Message = err.Error()
		return
	}
	out.Executed = true
	publishEvent(ctx, s.bus, s.alerts, "swarm", eventbus.SubjectDecisionAutoApproved, d)
	s.RecordPattern(ctx, d, learning.DispositionAutoApproved, "executed")
}

// routeToHumans creates the human task for a decision under review and, when
// the decision is strategic or touches multiple stakeholders, starts a
// multi-stage review workflow. The task goes under progress tracking.
func (s *Swarm) routeToHumans(ctx context.Context, req DecisionRequest, d *decision.Decision, out *Outcome) {
	t, err := s.deleg.CreateTask(ctx, task.CreateRequest{
		DecisionID:       d.ID,
		Title:            "Review: " + d.Title,
		Description:      req.Description,
		Type:             "decision_review",
		Priority:         priorityFromUrgency(req.Urgency),
		EstimatedEffort:  0.2,
		EstimatedMinutes: 30,
	})
	if err != nil {
		slog.Warn("create review task", "decision_id", d.ID, "error", err)
	} else {
		out.TaskID = t.ID
		if _, err := s.deleg.Assign(ctx, t.ID); err != nil {
			slog.Warn("assign review task", "task_id", t.ID, "error", err)
		}
		if err := s.tracker.Track(tracking.Entity{
			ID:               t.ID,
			Kind:             tracking.KindTask,
			Name:             t.Title,
			EstimatedMinutes: t.EstimatedMinutes,
			Risk:             req.RiskScore,
		}); err != nil {
			slog.Warn("track review task", "task_id", t.ID, "error", err)
		}
	}

	if req.Strategic || d.MultiStakeholder() {
		exec, err := s.wf.Start(ctx, d.ID, s.reviewWorkflow(req))
		if err != nil {
			slog.Warn("start review workflow", "decision_id", d.ID, "error", err)
		} else {
			out.WorkflowID = exec.ID
		}
	}
}

// reviewWorkflow is the standard two-stage definition bound to strategic and
// multi-stakeholder decisions. Stage timeouts come from config; the stage
// clock is what drives the supervisor's timeout scan.
func (s *Swarm) reviewWorkflow(req DecisionRequest) workflow.Definition {
	return workflow.Definition{
		Name: "strategic-review",
		Stages: []workflow.Stage{
			{
				Name:             "initial_review",
				Kind:             workflow.StageReview,
				RequiresApproval: true,
				Timeout:          s.cfg.ReviewStageTimeout,
			},
			{
				Name:             "final_approval",
				Kind:             workflow.StageApproval,
				RequiresApproval: true,
				ApproverRoles:    approverRoles(req),
				Timeout:          s.cfg.ApprovalStageTimeout,
			},
		},
	}
}

// approverRoles requires every named stakeholder to sign off on the final
// stage; with no stakeholders, any single approval passes it.
func approverRoles(req DecisionRequest) []string {
	if len(req.Stakeholders) <= 1 {
		return nil
	}
	return slices.Clone(req.Stakeholders)
}

func priorityFromUrgency(urgency string) task.Priority {
	switch strings.ToLower(urgency) {
	case "critical", "emergency":
		return task.PriorityCritical
	case "high":
		return task.PriorityHigh
	case "low":
		return task.PriorityLow
	default:
		return task.PriorityMedium
	}
}

// EmergencyOverride applies an immediate intervention on an agent. The
// requester's role must be on the configured allowlist and the request must
// be fresher than the override window; failing either returns
// domain.ErrUnauthorized and never reaches the coordinator.
func (s *Swarm) EmergencyOverride(ctx context.Context, req OverrideRequest) error {
	ctx, span := adotel.StartOverrideSpan(ctx, req.AgentID, req.Role)
	defer span.End()

	deny := func(why string) error {
		slog.Warn("emergency override denied",
			"agent_id", req.AgentID, "authorized_by", req.AuthorizedBy, "role", req.Role, "why", why)
		if s.metrics != nil {
			s.metrics.OverrideAttempts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("outcome", "denied")))
		}
		if s.alerts != nil {
			s.alerts.Raise(ctx, alert.LevelCritical, "swarm",
				fmt.Sprintf("unauthorized emergency override attempt on %s by %s", req.AgentID, req.AuthorizedBy),
				map[string]any{"role": req.Role, "why": why})
		}
		return fmt.Errorf("emergency override by %s (%s): %s: %w", req.AuthorizedBy, req.Role, why, domain.ErrUnauthorized)
	}

	if !slices.Contains(s.cfg.EmergencyOverrideRoles, req.Role) {
		return deny("role not on allowlist")
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	} else if time.Since(req.RequestedAt) > s.cfg.MaxOverrideWindow {
		return deny("request older than override window")
	}

	err := s.guard(func() error {
		return s.coord.EmergencyOverride(ctx, coordinator.Override{
			AgentID:      req.AgentID,
			Action:       req.Action,
			AuthorizedBy: req.AuthorizedBy,
			Reason:       req.Reason,
			Emergency:    true,
		})
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.OverrideAttempts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("outcome", "failed")))
		}
		return fmt.Errorf("apply emergency override on %s: %w", req.AgentID, err)
	}

	slog.Warn("emergency override applied",
		"agent_id", req.AgentID, "action", req.Action, "authorized_by", req.AuthorizedBy)
	if s.metrics != nil {
		s.metrics.OverrideAttempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "applied")))
	}
	if s.alerts != nil {
		s.alerts.Raise(ctx, alert.LevelCritical, "swarm",
			fmt.Sprintf("emergency override applied to %s by %s", req.AgentID, req.AuthorizedBy),
			map[string]any{"action": req.Action, "reason": req.Reason})
	}
	publishEvent(ctx, s.bus, s.alerts, "swarm", eventbus.SubjectEmergencyOverride, req)
	return nil
}

// RecordPattern appends one resolution pattern to the bounded learning log
// and persists it. Every RetrainThreshold recordings it suggests retraining,
// exactly once per fill.
func (s *Swarm) RecordPattern(ctx context.Context, d *decision.Decision, disp learning.Disposition, outcome string) {
	p := learning.Pattern{
		ID:           uuid.NewString(),
		DecisionID:   d.ID,
		DecisionType: d.Type,
		Confidence:   d.Confidence,
		Disposition:  disp,
		Outcome:      outcome,
		RecordedAt:   time.Now().UTC(),
	}
	if d.ResolvedAt != nil {
		p.TimeToDecision = d.ResolvedAt.Sub(d.CreatedAt)
	}

	s.mu.Lock()
	s.patterns = append(s.patterns, p)
	if len(s.patterns) > s.cfg.MaxPatterns {
		s.patterns = s.patterns[len(s.patterns)-s.cfg.MaxPatterns:]
	}
	s.totalRecorded++
	s.sinceSuggest++
	suggest := s.sinceSuggest >= s.cfg.RetrainThreshold
	if suggest {
		s.sinceSuggest = 0
	}
	count := len(s.patterns)
	s.mu.Unlock()

	s.persistPattern(ctx, &p)

	if suggest {
		slog.Info("retrain threshold reached", "patterns", count)
		publishEvent(ctx, s.bus, s.alerts, "swarm", eventbus.SubjectRetrainSuggested, map[string]any{
			"pattern_count": count,
		})
		req := coordinator.RetrainRequest{
			PatternCount: count,
			PatternKey:   memorystore.Key("learning", "pattern", ""),
			Reason:       "pattern threshold reached",
		}
		if err := s.guard(func() error { return s.coord.InitiateRetraining(ctx, req) }); err != nil {
			slog.Warn("initiate retraining", "error", err)
			if s.alerts != nil {
				s.alerts.Raise(ctx, alert.LevelWarning, "swarm",
					"retraining pipeline unreachable", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Patterns returns a copy of the retained learning log, oldest first.
func (s *Swarm) Patterns() []learning.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.patterns)
}

// guard runs a coordinator call through the circuit breaker when one is
// configured.
func (s *Swarm) guard(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Execute(fn)
}

func (s *Swarm) persistPattern(ctx context.Context, p *learning.Pattern) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("marshal learning pattern", "pattern_id", p.ID, "error", err)
		return
	}
	if err := s.store.Store(ctx, memorystore.Key("learning", "pattern", p.ID), data); err != nil {
		slog.Warn("pattern write failed", "pattern_id", p.ID, "error", err)
	}
}

// Health reports swarm integration status for the supervisor's health loop.
// An open circuit to the coordinator degrades the component.
func (s *Swarm) Health(_ context.Context) ComponentHealth {
	s.mu.Lock()
	retained := len(s.patterns)
	total := s.totalRecorded
	s.mu.Unlock()

	healthy := true
	if s.breaker != nil {
		healthy = s.breaker.Healthy()
	}
	return ComponentHealth{
		Name:    "swarm",
		Healthy: healthy,
		Details: map[string]any{
			"patterns_retained": retained,
			"patterns_recorded": total,
			"breaker_closed":    healthy,
		},
	}
}
