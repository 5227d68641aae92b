package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/decision"
	"github.com/revloop/overseer/internal/domain/workflow"
	"github.com/revloop/overseer/internal/port/eventbus"
)

func testWorkflowEngine(t *testing.T, bus *mockBus) (*Workflow, *Orchestrator) {
	t.Helper()
	orch := testOrchestrator(bus, newMockStore())
	wf, err := NewWorkflow(orch, newMockStore(), bus, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	return wf, orch
}

func twoStageDef() workflow.Definition {
	return workflow.Definition{
		Name: "standard-review",
		Stages: []workflow.Stage{
			{Name: "review", Kind: workflow.StageReview, RequiresApproval: true, Timeout: time.Hour},
			{Name: "approve", Kind: workflow.StageApproval, RequiresApproval: true,
				ApproverRoles: []string{"finance", "ops"}, Timeout: time.Hour},
		},
	}
}

func TestNewWorkflowRequiresOrchestrator(t *testing.T) {
	if _, err := NewWorkflow(nil, newMockStore(), &mockBus{}, nil, nil, nil); !errors.Is(err, domain.ErrDependencyMissing) {
		t.Errorf("NewWorkflow(nil orch) = %v, want ErrDependencyMissing", err)
	}
}

func TestStartValidatesDefinition(t *testing.T) {
	wf, orch := testWorkflowEngine(t, &mockBus{})
	d, _ := orch.Submit(context.Background(), submitReq(0.6))

	bad := workflow.Definition{Name: "empty"}
	if _, err := wf.Start(context.Background(), d.ID, bad); err == nil {
		t.Error("expected error for definition without stages")
	}
}

func TestStartOnePerDecision(t *testing.T) {
	ctx := context.Background()
	wf, orch := testWorkflowEngine(t, &mockBus{})
	d, _ := orch.Submit(ctx, submitReq(0.6))

	if _, err := wf.Start(ctx, d.ID, twoStageDef()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := wf.Start(ctx, d.ID, twoStageDef()); !errors.Is(err, domain.ErrWorkflowActive) {
		t.Errorf("second Start = %v, want ErrWorkflowActive", err)
	}
}

func TestStartRejectsTerminalDecision(t *testing.T) {
	ctx := context.Background()
	wf, orch := testWorkflowEngine(t, &mockBus{})
	d, _ := orch.Submit(ctx, submitReq(0.6))
	orch.Reject(ctx, d.ID, "no")

	if _, err := wf.Start(ctx, d.ID, twoStageDef()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Start on rejected decision = %v, want ErrInvalidTransition", err)
	}
}

func TestAdvanceCollectsAllRoles(t *testing.T) {
	ctx := context.Background()
	bus := &mockBus{}
	wf, orch := testWorkflowEngine(t, bus)
	d, _ := orch.Submit(ctx, submitReq(0.6))
	exec, _ := wf.Start(ctx, d.ID, twoStageDef())

	// Stage 0 has no role list: one approval advances it.
	if err := wf.Advance(ctx, exec.ID, workflow.Approval{Approver: "alice", Approved: true}); err != nil {
		t.Fatalf("Advance stage 0: %v", err)
	}
	got, _ := wf.Get(exec.ID)
	if got.CurrentStage != 1 {
		t.Fatalf("stage = %d, want 1", got.CurrentStage)
	}

	// Stage 1 needs both finance and ops.
	if err := wf.Advance(ctx, exec.ID, workflow.Approval{Role: "finance", Approver: "bob", Approved: true}); err != nil {
		t.Fatalf("Advance finance: %v", err)
	}
	got, _ = wf.Get(exec.ID)
	if got.Status != workflow.ExecRunning || got.CurrentStage != 1 {
		t.Fatalf("after one of two roles: stage=%d status=%s", got.CurrentStage, got.Status)
	}

	if err := wf.Advance(ctx, exec.ID, workflow.Approval{Role: "ops", Approver: "carol", Approved: true}); err != nil {
		t.Fatalf("Advance ops: %v", err)
	}
	got, _ = wf.Get(exec.ID)
	if got.Status != workflow.ExecCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	// Completion approves the bound decision through the orchestrator.
	bound, _ := orch.Get(d.ID)
	if bound.Status != decision.StatusApproved {
		t.Errorf("decision status = %s, want approved", bound.Status)
	}
	if got := bus.count(eventbus.SubjectWorkflowCompleted); got != 1 {
		t.Errorf("workflows.completed published %d times, want 1", got)
	}
}

func TestAdvanceRejectionCancels(t *testing.T) {
	ctx := context.Background()
	wf, orch := testWorkflowEngine(t, &mockBus{})
	d, _ := orch.Submit(ctx, submitReq(0.6))
	exec, _ := wf.Start(ctx, d.ID, twoStageDef())

	if err := wf.Advance(ctx, exec.ID, workflow.Approval{Approver: "alice", Approved: false, Comment: "too risky"}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got, _ := wf.Get(exec.ID)
	if got.Status != workflow.ExecCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	bound, _ := orch.Get(d.ID)
	if bound.Status != decision.StatusRejected {
		t.Errorf("decision status = %s, want rejected", bound.Status)
	}
	if bound.Resolution != "too risky" {
		t.Errorf("resolution = %q, want rejection comment", bound.Resolution)
	}
}

func TestAdvanceOnFinishedExecution(t *testing.T) {
	ctx := context.Background()
	wf, orch := testWorkflowEngine(t, &mockBus{})
	d, _ := orch.Submit(ctx, submitReq(0.6))
	exec, _ := wf.Start(ctx, d.ID, twoStageDef())
	wf.Advance(ctx, exec.ID, workflow.Approval{Approver: "a", Approved: false})

	err := wf.Advance(ctx, exec.ID, workflow.Approval{Approver: "b", Approved: true})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Advance on cancelled execution = %v, want ErrInvalidTransition", err)
	}
}

func TestStageTimeoutEscalates(t *testing.T) {
	ctx := context.Background()
	bus := &mockBus{}
	wf, orch := testWorkflowEngine(t, bus)
	d, _ := orch.Submit(ctx, submitReq(0.6))
	exec, _ := wf.Start(ctx, d.ID, twoStageDef())

	// Well past the one-hour stage timeout.
	wf.ScanTimeouts(ctx, time.Now().UTC().Add(2*time.Hour))

	got, _ := wf.Get(exec.ID)
	if got.Status != workflow.ExecTimedOut {
		t.Fatalf("status = %s, want timed_out", got.Status)
	}
	bound, _ := orch.Get(d.ID)
	if bound.Status != decision.StatusEscalated {
		t.Errorf("decision status = %s, want escalated", bound.Status)
	}
	if got := bus.count(eventbus.SubjectStageTimeout); got != 1 {
		t.Errorf("stage_timeout published %d times, want 1", got)
	}

	// A second scan must not double-fire.
	wf.ScanTimeouts(ctx, time.Now().UTC().Add(3*time.Hour))
	if got := bus.count(eventbus.SubjectStageTimeout); got != 1 {
		t.Errorf("stage_timeout published %d times after rescan, want 1", got)
	}
}

func TestLateApprovalAfterTimeoutIsNoOp(t *testing.T) {
	ctx := context.Background()
	wf, orch := testWorkflowEngine(t, &mockBus{})
	d, _ := orch.Submit(ctx, submitReq(0.6))
	exec, _ := wf.Start(ctx, d.ID, twoStageDef())
	wf.ScanTimeouts(ctx, time.Now().UTC().Add(2*time.Hour))

	if err := wf.Advance(ctx, exec.ID, workflow.Approval{Approver: "late", Approved: true}); err != nil {
		t.Errorf("late approval = %v, want nil (tolerated no-op)", err)
	}
	got, _ := wf.Get(exec.ID)
	if got.Status != workflow.ExecTimedOut {
		t.Errorf("status changed to %s by late approval", got.Status)
	}
}

func TestScanSkipsFreshStages(t *testing.T) {
	ctx := context.Background()
	wf, orch := testWorkflowEngine(t, &mockBus{})
	d, _ := orch.Submit(ctx, submitReq(0.6))
	exec, _ := wf.Start(ctx, d.ID, twoStageDef())

	wf.ScanTimeouts(ctx, time.Now().UTC().Add(10*time.Minute))

	got, _ := wf.Get(exec.ID)
	if got.Status != workflow.ExecRunning {
		t.Errorf("status = %s, want still running", got.Status)
	}
}
