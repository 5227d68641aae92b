package http

import (
	"net/http"

	"github.com/revloop/overseer/internal/adapter/ws"
	"github.com/revloop/overseer/internal/domain/learning"
	"github.com/revloop/overseer/internal/domain/task"
	"github.com/revloop/overseer/internal/domain/tracking"
	"github.com/revloop/overseer/internal/domain/workflow"
	"github.com/revloop/overseer/internal/service"
)

// bodyLimit caps JSON request bodies at 1 MiB.
const bodyLimit = 1 << 20

// Handlers bundles the core services behind the operator API.
type Handlers struct {
	Orchestrator *service.Orchestrator
	Delegation   *service.Delegation
	Workflow     *service.Workflow
	Tracker      *service.Tracker
	Swarm        *service.Swarm
	Supervisor   *service.Supervisor
	Alerts       *service.AlertRegistry
	Hub          *ws.Hub
}

// ---------------------------------------------------------------------------
// Decisions
// ---------------------------------------------------------------------------

// SubmitDecision accepts a decision request from the swarm (or an operator
// acting on its behalf) and returns the routing outcome.
func (h *Handlers) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.DecisionRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	out, err := h.Swarm.HandleDecisionRequest(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) ListPendingDecisions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Pending())
}

func (h *Handlers) ListDecisionHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.History())
}

func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.Orchestrator.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) ApproveDecision(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Orchestrator.Approve(r.Context(), id); err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	h.recordPattern(r, id, learning.DispositionApproved, "approved by operator")
	w.WriteHeader(http.StatusNoContent)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) RejectDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[rejectRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	if err := h.Orchestrator.Reject(r.Context(), id, req.Reason); err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	h.recordPattern(r, id, learning.DispositionRejected, req.Reason)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ExecuteDecision(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Orchestrator.Execute(r.Context(), id); err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	h.recordPattern(r, id, learning.DispositionApproved, "executed")
	w.WriteHeader(http.StatusNoContent)
}

type escalateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) EscalateDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[escalateRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.Orchestrator.Escalate(r.Context(), urlParam(r, "id"), req.Reason); err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// recordPattern captures a human disposition for the learning log. The
// decision may already be in history by the time we look it up.
func (h *Handlers) recordPattern(r *http.Request, decisionID string, disp learning.Disposition, outcome string) {
	if h.Swarm == nil {
		return
	}
	if d, err := h.Orchestrator.Get(decisionID); err == nil {
		h.Swarm.RecordPattern(r.Context(), d, disp, outcome)
	}
}

// ---------------------------------------------------------------------------
// Tasks and operators
// ---------------------------------------------------------------------------

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.CreateRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	t, err := h.Delegation.CreateTask(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) ListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Delegation.ListTasks())
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Delegation.GetTask(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) AssignTask(w http.ResponseWriter, r *http.Request) {
	op, err := h.Delegation.Assign(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	if op == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "pending",
			"reason": "no eligible operator; will retry",
		})
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (h *Handlers) StartTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Delegation.Start(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	outcome, ok := readJSON[task.Outcome](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.Delegation.Complete(r.Context(), urlParam(r, "id"), outcome); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RegisterOperator(w http.ResponseWriter, r *http.Request) {
	op, ok := readJSON[task.Operator](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.Delegation.RegisterOperator(r.Context(), op); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

func (h *Handlers) ListOperators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Delegation.ListOperators())
}

type operatorStatusRequest struct {
	Status task.OperatorStatus `json:"status"`
}

func (h *Handlers) SetOperatorStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[operatorStatusRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.Delegation.SetOperatorStatus(r.Context(), urlParam(r, "id"), req.Status); err != nil {
		writeDomainError(w, err, "operator not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Workflows
// ---------------------------------------------------------------------------

type startWorkflowRequest struct {
	DecisionID string              `json:"decision_id"`
	Definition workflow.Definition `json:"definition"`
}

func (h *Handlers) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[startWorkflowRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	exec, err := h.Workflow.Start(r.Context(), req.DecisionID, req.Definition)
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	exec, err := h.Workflow.Get(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow execution not found")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *Handlers) AdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	approval, ok := readJSON[workflow.Approval](w, r, bodyLimit)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	if err := h.Workflow.Advance(r.Context(), id, approval); err != nil {
		writeDomainError(w, err, "workflow execution not found")
		return
	}
	exec, err := h.Workflow.Get(id)
	if err != nil {
		writeDomainError(w, err, "workflow execution not found")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// ---------------------------------------------------------------------------
// Progress tracking
// ---------------------------------------------------------------------------

func (h *Handlers) TrackEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := readJSON[tracking.Entity](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.Tracker.Track(e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handlers) ListTracked(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Tracker.Tracked())
}

func (h *Handlers) UpdateTracked(w http.ResponseWriter, r *http.Request) {
	reading, ok := readJSON[tracking.Reading](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.Tracker.Update(urlParam(r, "id"), reading); err != nil {
		writeDomainError(w, err, "tracked entity not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) UntrackEntity(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.Untrack(urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "tracked entity not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Swarm
// ---------------------------------------------------------------------------

func (h *Handlers) EmergencyOverride(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.OverrideRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.Swarm.EmergencyOverride(r.Context(), req); err != nil {
		writeDomainError(w, err, "override failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListPatterns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Swarm.Patterns())
}

// ---------------------------------------------------------------------------
// Alerts and system
// ---------------------------------------------------------------------------

func (h *Handlers) ListAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Alerts.List())
}

func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.Alerts.Acknowledge(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Supervisor.Status())
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handlers) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[maintenanceRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	var err error
	if req.Enabled {
		err = h.Supervisor.EnableMaintenance(r.Context())
	} else {
		err = h.Supervisor.DisableMaintenance(r.Context())
	}
	if err != nil {
		writeDomainError(w, err, "maintenance toggle failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"maintenance": req.Enabled})
}

func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
