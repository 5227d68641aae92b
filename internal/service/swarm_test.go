package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/decision"
	"github.com/revloop/overseer/internal/domain/learning"
	"github.com/revloop/overseer/internal/domain/task"
	"github.com/revloop/overseer/internal/port/eventbus"
	"github.com/revloop/overseer/internal/resilience"
)

type swarmFixture struct {
	swarm  *Swarm
	orch   *Orchestrator
	deleg  *Delegation
	wf     *Workflow
	coord  *mockCoordinator
	bus    *mockBus
	alerts *AlertRegistry
}

func newSwarmFixture(t *testing.T, cfg config.Swarm) *swarmFixture {
	t.Helper()

	bus := &mockBus{}
	store := newMockStore()
	alerts := testRegistry()
	coord := &mockCoordinator{}

	orch := testOrchestrator(bus, store)
	deleg := NewDelegation(config.Defaults().Delegation, store, bus, alerts, nil, nil)
	wf, err := NewWorkflow(orch, store, bus, alerts, nil, nil)
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	tracker := testTracker(alerts, nil)

	s, err := NewSwarm(cfg, orch, deleg, wf, tracker, coord, bus, store, alerts,
		resilience.NewBreaker(5, time.Second), nil)
	if err != nil {
		t.Fatalf("NewSwarm: %v", err)
	}
	return &swarmFixture{swarm: s, orch: orch, deleg: deleg, wf: wf, coord: coord, bus: bus, alerts: alerts}
}

func swarmReq(confidence float64) DecisionRequest {
	return DecisionRequest{
		AgentID:    "agent-7",
		Type:       "resource_allocation",
		Title:      "scale worker pool",
		Urgency:    "medium",
		Confidence: confidence,
		Recommendations: []decision.Recommendation{
			{ID: "rec-1", Reasoning: "load trending up"},
		},
	}
}

func TestNewSwarmFailsFastOnMissingDeps(t *testing.T) {
	cfg := config.Defaults().Swarm
	if _, err := NewSwarm(cfg, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil); !errors.Is(err, domain.ErrDependencyMissing) {
		t.Errorf("NewSwarm with nil deps = %v, want ErrDependencyMissing", err)
	}
}

func TestHighConfidenceExecutesThroughCoordinator(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	out, err := f.swarm.HandleDecisionRequest(context.Background(), swarmReq(0.95))
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if !out.Executed {
		t.Fatal("outcome not marked executed")
	}
	if len(f.coord.executed) != 1 || f.coord.executed[0] != out.DecisionID {
		t.Errorf("coordinator executed %v, want [%s]", f.coord.executed, out.DecisionID)
	}

	d, _ := f.orch.Get(out.DecisionID)
	if d.Status != decision.StatusExecuted {
		t.Errorf("decision status = %s, want executed", d.Status)
	}
	if got := f.bus.count(eventbus.SubjectDecisionAutoApproved); got != 1 {
		t.Errorf("decisions.autoapproved published %d times, want 1", got)
	}

	patterns := f.swarm.Patterns()
	if len(patterns) != 1 || patterns[0].Disposition != learning.DispositionAutoApproved {
		t.Errorf("patterns = %+v, want one auto_approved", patterns)
	}
}

func TestMidConfidenceCreatesReviewTask(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	out, err := f.swarm.HandleDecisionRequest(context.Background(), swarmReq(0.75))
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if out.Status != decision.StatusPendingReview {
		t.Fatalf("status = %s, want pending_review", out.Status)
	}
	if out.TaskID == "" {
		t.Fatal("no review task created")
	}
	if out.WorkflowID != "" {
		t.Error("non-strategic single-stakeholder request should not start a workflow")
	}
	if len(f.coord.executed) != 0 {
		t.Error("coordinator must not execute decisions under review")
	}

	created, err := f.deleg.GetTask(out.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if created.DecisionID != out.DecisionID {
		t.Errorf("task bound to %s, want %s", created.DecisionID, out.DecisionID)
	}
}

func TestStrategicRequestStartsWorkflow(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	req := swarmReq(0.75)
	req.Strategic = true
	out, err := f.swarm.HandleDecisionRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if out.WorkflowID == "" {
		t.Fatal("strategic request did not start a workflow")
	}
	if _, err := f.wf.Get(out.WorkflowID); err != nil {
		t.Errorf("workflow execution not found: %v", err)
	}
}

func TestMultiStakeholderStartsWorkflow(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	req := swarmReq(0.75)
	req.Stakeholders = []string{"finance", "ops"}
	out, err := f.swarm.HandleDecisionRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if out.WorkflowID == "" {
		t.Fatal("multi-stakeholder request did not start a workflow")
	}
}

func TestUrgencyMapsToPriority(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	req := swarmReq(0.3)
	req.Urgency = "critical"
	out, err := f.swarm.HandleDecisionRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	created, _ := f.deleg.GetTask(out.TaskID)
	if created.Priority != task.PriorityCritical {
		t.Errorf("priority = %s, want critical", created.Priority)
	}
}

func TestCoordinatorFailureDefersExecution(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)
	f.coord.executeErr = errors.New("swarm unreachable")

	out, err := f.swarm.HandleDecisionRequest(context.Background(), swarmReq(0.95))
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if out.Executed {
		t.Error("outcome marked executed despite coordinator failure")
	}

	// Decision stays auto_approved for a later manual execute.
	d, _ := f.orch.Get(out.DecisionID)
	if d.Status != decision.StatusAutoApproved {
		t.Errorf("decision status = %s, want auto_approved", d.Status)
	}
}

func TestEmergencyOverrideAuthorized(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	err := f.swarm.EmergencyOverride(context.Background(), OverrideRequest{
		AgentID:      "agent-7",
		Action:       "halt",
		AuthorizedBy: "jordan",
		Role:         "incident-commander",
		Reason:       "runaway spend",
	})
	if err != nil {
		t.Fatalf("EmergencyOverride: %v", err)
	}
	if f.coord.overrideCount() != 1 {
		t.Fatalf("coordinator overrides = %d, want 1", f.coord.overrideCount())
	}

	// A critical alert names the authorizer.
	found := false
	for _, a := range f.alerts.List() {
		if a.Component == "swarm" && a.Level == "critical" {
			found = true
		}
	}
	if !found {
		t.Error("no critical alert raised for applied override")
	}
	if got := f.bus.count(eventbus.SubjectEmergencyOverride); got != 1 {
		t.Errorf("emergency_override published %d times, want 1", got)
	}
}

func TestEmergencyOverrideUnauthorizedRole(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	err := f.swarm.EmergencyOverride(context.Background(), OverrideRequest{
		AgentID:      "agent-7",
		Action:       "halt",
		AuthorizedBy: "mallory",
		Role:         "intern",
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("EmergencyOverride = %v, want ErrUnauthorized", err)
	}
	if f.coord.overrideCount() != 0 {
		t.Error("coordinator touched by unauthorized override")
	}
}

func TestEmergencyOverrideStaleRequest(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	err := f.swarm.EmergencyOverride(context.Background(), OverrideRequest{
		AgentID:      "agent-7",
		Action:       "halt",
		AuthorizedBy: "jordan",
		Role:         "incident-commander",
		RequestedAt:  time.Now().Add(-time.Hour),
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stale EmergencyOverride = %v, want ErrUnauthorized", err)
	}
	if f.coord.overrideCount() != 0 {
		t.Error("coordinator touched by stale override")
	}
}

func TestRetrainSuggestedOncePerFill(t *testing.T) {
	cfg := config.Defaults().Swarm
	cfg.RetrainThreshold = 3
	cfg.MaxPatterns = 10
	f := newSwarmFixture(t, cfg)

	d := &decision.Decision{ID: "d1", Type: "t", Confidence: 0.8}
	for i := 0; i < 3; i++ {
		f.swarm.RecordPattern(context.Background(), d, learning.DispositionApproved, "ok")
	}
	if got := f.bus.count(eventbus.SubjectRetrainSuggested); got != 1 {
		t.Fatalf("retrain_suggested published %d times, want 1", got)
	}
	if len(f.coord.retrains) != 1 {
		t.Fatalf("retraining initiated %d times, want 1", len(f.coord.retrains))
	}

	// Two more patterns stay under the next fill.
	f.swarm.RecordPattern(context.Background(), d, learning.DispositionApproved, "ok")
	f.swarm.RecordPattern(context.Background(), d, learning.DispositionApproved, "ok")
	if got := f.bus.count(eventbus.SubjectRetrainSuggested); got != 1 {
		t.Errorf("retrain_suggested published %d times, want still 1", got)
	}

	// The sixth completes the second fill.
	f.swarm.RecordPattern(context.Background(), d, learning.DispositionApproved, "ok")
	if got := f.bus.count(eventbus.SubjectRetrainSuggested); got != 2 {
		t.Errorf("retrain_suggested published %d times, want 2", got)
	}
}

func TestPatternLogBounded(t *testing.T) {
	cfg := config.Defaults().Swarm
	cfg.RetrainThreshold = 2
	cfg.MaxPatterns = 2
	f := newSwarmFixture(t, cfg)

	d := &decision.Decision{ID: "d1", Type: "t", Confidence: 0.8}
	for i := 0; i < 5; i++ {
		f.swarm.RecordPattern(context.Background(), d, learning.DispositionApproved, "ok")
	}
	if got := len(f.swarm.Patterns()); got != 2 {
		t.Errorf("patterns retained = %d, want 2", got)
	}
}

func TestAutoApproveBandGatesExecution(t *testing.T) {
	cfg := config.Defaults().Swarm
	cfg.Confidence.AutoApprove = 0.99
	f := newSwarmFixture(t, cfg)

	out, err := f.swarm.HandleDecisionRequest(context.Background(), swarmReq(0.95))
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if out.Status != decision.StatusPendingReview {
		t.Errorf("status = %s, want pending_review when confidence is below the band", out.Status)
	}
	if out.Executed {
		t.Error("outcome marked executed below the auto-approve band")
	}
	if len(f.coord.executed) != 0 {
		t.Errorf("coordinator executed %v, want nothing", f.coord.executed)
	}
	if out.TaskID == "" {
		t.Error("no review task created")
	}
}

func TestEscalateBandOverridesReview(t *testing.T) {
	cfg := config.Defaults().Swarm
	cfg.Confidence.Escalate = 0.6
	f := newSwarmFixture(t, cfg)

	out, err := f.swarm.HandleDecisionRequest(context.Background(), swarmReq(0.58))
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if out.Status != decision.StatusEscalated {
		t.Errorf("status = %s, want escalated at or below the escalation band", out.Status)
	}
	d, err := f.orch.Get(out.DecisionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Status != decision.StatusEscalated {
		t.Errorf("decision status = %s, want escalated", d.Status)
	}
}

func TestReviewWorkflowUsesConfiguredStageTimeouts(t *testing.T) {
	cfg := config.Defaults().Swarm
	cfg.ReviewStageTimeout = 5 * time.Minute
	cfg.ApprovalStageTimeout = 2 * time.Minute
	f := newSwarmFixture(t, cfg)

	req := swarmReq(0.75)
	req.Strategic = true
	out, err := f.swarm.HandleDecisionRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("HandleDecisionRequest: %v", err)
	}
	if out.WorkflowID == "" {
		t.Fatal("strategic request did not start a workflow")
	}

	exec, err := f.wf.Get(out.WorkflowID)
	if err != nil {
		t.Fatalf("Get workflow: %v", err)
	}
	stages := exec.Definition.Stages
	if len(stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(stages))
	}
	if stages[0].Timeout != 5*time.Minute || stages[1].Timeout != 2*time.Minute {
		t.Errorf("stage timeouts = %v/%v, want 5m/2m", stages[0].Timeout, stages[1].Timeout)
	}
}
