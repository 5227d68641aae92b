package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	adotel "github.com/revloop/overseer/internal/adapter/otel"
	"github.com/revloop/overseer/internal/adapter/ws"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/domain/workflow"
	"github.com/revloop/overseer/internal/port/eventbus"
	"github.com/revloop/overseer/internal/port/memorystore"
)

// Workflow runs multi-stage approval workflows bound to decisions. It never
// mutates decision state directly; transitions go through the orchestrator.
type Workflow struct {
	orch    *Orchestrator
	store   memorystore.Store
	bus     eventbus.Bus
	alerts  *AlertRegistry
	hub     *ws.Hub
	metrics *adotel.Metrics

	mu         sync.Mutex
	execs      map[string]*workflow.Execution
	byDecision map[string]string // decision ID -> running execution ID
}

// NewWorkflow creates the review workflow engine. The orchestrator is a hard
// dependency; construction fails fast without it.
func NewWorkflow(orch *Orchestrator, store memorystore.Store, bus eventbus.Bus, alerts *AlertRegistry, hub *ws.Hub, metrics *adotel.Metrics) (*Workflow, error) {
	if orch == nil {
		return nil, fmt.Errorf("workflow engine: orchestrator: %w", domain.ErrDependencyMissing)
	}
	return &Workflow{
		orch:       orch,
		store:      store,
		bus:        bus,
		alerts:     alerts,
		hub:        hub,
		metrics:    metrics,
		execs:      make(map[string]*workflow.Execution),
		byDecision: make(map[string]string),
	}, nil
}

// Start binds a workflow definition to a decision and begins stage 0.
// A decision may have at most one active execution.
func (w *Workflow) Start(ctx context.Context, decisionID string, def workflow.Definition) (*workflow.Execution, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	d, err := w.orch.Get(decisionID)
	if err != nil {
		return nil, fmt.Errorf("workflow start: %w", err)
	}
	if d.Terminal() {
		return nil, fmt.Errorf("decision %s is %s: %w", decisionID, d.Status, domain.ErrInvalidTransition)
	}

	w.mu.Lock()
	if _, exists := w.byDecision[decisionID]; exists {
		w.mu.Unlock()
		return nil, fmt.Errorf("decision %s: %w", decisionID, domain.ErrWorkflowActive)
	}

	now := time.Now().UTC()
	exec := &workflow.Execution{
		ID:             uuid.NewString(),
		DecisionID:     decisionID,
		Definition:     def,
		CurrentStage:   0,
		StageStartedAt: now,
		Approvals:      make(map[int]map[string]bool),
		Status:         workflow.ExecRunning,
		StartedAt:      now,
	}
	w.execs[exec.ID] = exec
	w.byDecision[decisionID] = exec.ID
	cp := *exec
	w.mu.Unlock()

	slog.Info("workflow started",
		"execution_id", cp.ID,
		"decision_id", decisionID,
		"definition", def.Name,
		"stages", len(def.Stages),
	)
	w.persist(ctx, &cp)
	publishEvent(ctx, w.bus, w.alerts, "workflow", eventbus.SubjectWorkflowStarted, &cp)
	w.broadcast(ctx, &cp)

	return &cp, nil
}

// Advance records one approver's verdict on the execution's current stage.
//
// A rejection cancels the execution and rejects the bound decision. An
// approval advances once every required approver role has approved. Verdicts
// arriving after a stage timed out are no-ops rather than errors: the timeout
// and the human race, and the late verdict must be tolerated. Verdicts on
// completed or cancelled executions are invalid transitions.
func (w *Workflow) Advance(ctx context.Context, execID string, approval workflow.Approval) error {
	w.mu.Lock()
	exec, ok := w.execs[execID]
	if !ok {
		w.mu.Unlock()
		return domain.ErrNotFound
	}

	switch exec.Status {
	case workflow.ExecTimedOut:
		w.mu.Unlock()
		slog.Debug("late verdict on timed-out execution ignored",
			"execution_id", execID, "approver", approval.Approver)
		return nil
	case workflow.ExecCompleted, workflow.ExecCancelled:
		status := exec.Status
		w.mu.Unlock()
		return fmt.Errorf("execution %s is %s: %w", execID, status, domain.ErrInvalidTransition)
	}

	if !approval.Approved {
		now := time.Now().UTC()
		exec.Status = workflow.ExecCancelled
		exec.CompletedAt = &now
		delete(w.byDecision, exec.DecisionID)
		cp := *exec
		w.mu.Unlock()

		slog.Info("workflow cancelled by rejection",
			"execution_id", execID,
			"stage", cp.CurrentStage,
			"approver", approval.Approver,
		)
		reason := approval.Comment
		if reason == "" {
			reason = fmt.Sprintf("rejected at stage %d by %s", cp.CurrentStage, approval.Approver)
		}
		if err := w.orch.Reject(ctx, cp.DecisionID, reason); err != nil {
			slog.Warn("reject bound decision", "decision_id", cp.DecisionID, "error", err)
		}
		w.persist(ctx, &cp)
		w.broadcast(ctx, &cp)
		return nil
	}

	stage := exec.Stage()
	if stage == nil {
		w.mu.Unlock()
		return fmt.Errorf("execution %s has no running stage: %w", execID, domain.ErrInvalidTransition)
	}

	if exec.Approvals[exec.CurrentStage] == nil {
		exec.Approvals[exec.CurrentStage] = make(map[string]bool)
	}
	role := approval.Role
	if role == "" {
		role = approval.Approver
	}
	exec.Approvals[exec.CurrentStage][role] = true

	if stage.RequiresApproval && !exec.StageApproved() {
		pending := missingRoles(stage, exec.Approvals[exec.CurrentStage])
		w.mu.Unlock()
		slog.Info("stage approval recorded, awaiting remaining approvers",
			"execution_id", execID, "stage", stage.Name, "missing_roles", pending)
		return nil
	}

	w.advanceLocked(ctx, exec)
	return nil
}

// advanceLocked moves the execution one stage forward, completing it when the
// last stage passes. Releases w.mu before calling out.
func (w *Workflow) advanceLocked(ctx context.Context, exec *workflow.Execution) {
	now := time.Now().UTC()
	stageSeconds := now.Sub(exec.StageStartedAt).Seconds()

	exec.CurrentStage++
	exec.StageStartedAt = now

	done := exec.CurrentStage >= len(exec.Definition.Stages)
	if done {
		exec.Status = workflow.ExecCompleted
		exec.CompletedAt = &now
		delete(w.byDecision, exec.DecisionID)
	}
	cp := *exec
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.WorkflowStageTimes.Record(ctx, stageSeconds)
	}

	if done {
		slog.Info("workflow completed", "execution_id", cp.ID, "decision_id", cp.DecisionID)
		if err := w.orch.Approve(ctx, cp.DecisionID); err != nil {
			slog.Warn("approve bound decision", "decision_id", cp.DecisionID, "error", err)
		}
		publishEvent(ctx, w.bus, w.alerts, "workflow", eventbus.SubjectWorkflowCompleted, &cp)
	} else {
		slog.Info("workflow advanced",
			"execution_id", cp.ID, "stage", cp.CurrentStage,
			"stage_name", cp.Definition.Stages[cp.CurrentStage].Name)
	}
	w.persist(ctx, &cp)
	w.broadcast(ctx, &cp)
}

// ScanTimeouts escalates every running execution whose current stage has
// outlived its timeout. Registered as a supervisor scheduler job. A timeout
// firing after the stage already advanced is inherently a no-op because the
// stage clock restarts on advance.
func (w *Workflow) ScanTimeouts(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var timedOut []workflow.Execution
	for _, exec := range w.execs {
		if exec.Status != workflow.ExecRunning {
			continue
		}
		stage := exec.Stage()
		if stage == nil {
			continue
		}
		if now.Sub(exec.StageStartedAt) >= stage.Timeout {
			completed := now
			exec.Status = workflow.ExecTimedOut
			exec.CompletedAt = &completed
			delete(w.byDecision, exec.DecisionID)
			timedOut = append(timedOut, *exec)
		}
	}
	w.mu.Unlock()

	for i := range timedOut {
		cp := timedOut[i]
		stage := cp.Definition.Stages[cp.CurrentStage]
		slog.Warn("workflow stage timed out",
			"execution_id", cp.ID,
			"decision_id", cp.DecisionID,
			"stage", stage.Name,
			"timeout", stage.Timeout,
		)
		publishEvent(ctx, w.bus, w.alerts, "workflow", eventbus.SubjectStageTimeout, &cp)
		if w.alerts != nil {
			w.alerts.Raise(ctx, alert.LevelWarning, "workflow",
				fmt.Sprintf("stage %q timed out for decision %s", stage.Name, cp.DecisionID),
				map[string]any{"execution_id": cp.ID, "stage": cp.CurrentStage})
		}
		if err := w.orch.Escalate(ctx, cp.DecisionID, "workflow stage timeout: "+stage.Name); err != nil {
			slog.Warn("escalate bound decision", "decision_id", cp.DecisionID, "error", err)
		}
		w.persist(ctx, &cp)
		w.broadcast(ctx, &cp)
	}
}

// Get returns a copy of the execution with the given ID.
func (w *Workflow) Get(id string) (*workflow.Execution, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	exec, ok := w.execs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *exec
	return &cp, nil
}

// ForDecision returns the running execution bound to a decision, if any.
func (w *Workflow) ForDecision(decisionID string) (*workflow.Execution, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.byDecision[decisionID]
	if !ok {
		return nil, false
	}
	cp := *w.execs[id]
	return &cp, true
}

func missingRoles(stage *workflow.Stage, got map[string]bool) []string {
	var missing []string
	for _, role := range stage.ApproverRoles {
		if !got[role] {
			missing = append(missing, role)
		}
	}
	return missing
}

func (w *Workflow) persist(ctx context.Context, exec *workflow.Execution) {
	if w.store == nil {
		return
	}
	data, err := json.Marshal(exec)
	if err != nil {
		slog.Error("marshal execution audit", "execution_id", exec.ID, "error", err)
		return
	}
	if err := w.store.Store(ctx, memorystore.Key("hitl", "workflow", exec.ID), data); err != nil {
		slog.Warn("workflow audit write failed", "execution_id", exec.ID, "error", err)
	}
}

func (w *Workflow) broadcast(ctx context.Context, exec *workflow.Execution) {
	if w.hub == nil {
		return
	}
	stageName := ""
	if exec.CurrentStage < len(exec.Definition.Stages) {
		stageName = exec.Definition.Stages[exec.CurrentStage].Name
	}
	w.hub.BroadcastEvent(ctx, ws.EventWorkflowStage, ws.WorkflowStageEvent{
		ExecutionID: exec.ID,
		DecisionID:  exec.DecisionID,
		Stage:       exec.CurrentStage,
		StageName:   stageName,
		Status:      string(exec.Status),
	})
}

// Health reports workflow engine status for the supervisor's health loop.
func (w *Workflow) Health(_ context.Context) ComponentHealth {
	w.mu.Lock()
	defer w.mu.Unlock()

	running := len(w.byDecision)
	return ComponentHealth{
		Name:    "workflow",
		Healthy: true,
		Details: map[string]any{
			"executions_total":   len(w.execs),
			"executions_running": running,
		},
	}
}
