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
	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/domain/task"
	"github.com/revloop/overseer/internal/port/eventbus"
	"github.com/revloop/overseer/internal/port/memorystore"
)

// Delegation matches human work to operators under capacity and skill
// constraints. It is the single writer for tasks and operators.
type Delegation struct {
	cfg     config.Delegation
	store   memorystore.Store
	bus     eventbus.Bus
	alerts  *AlertRegistry
	hub     *ws.Hub
	metrics *adotel.Metrics

	mu        sync.Mutex
	tasks     map[string]*task.Task
	operators map[string]*task.Operator
}

// NewDelegation creates the task delegation manager.
func NewDelegation(cfg config.Delegation, store memorystore.Store, bus eventbus.Bus, alerts *AlertRegistry, hub *ws.Hub, metrics *adotel.Metrics) *Delegation {
	return &Delegation{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		alerts:    alerts,
		hub:       hub,
		metrics:   metrics,
		tasks:     make(map[string]*task.Task),
		operators: make(map[string]*task.Operator),
	}
}

// CreateTask records a new pending human task.
func (d *Delegation) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if req.EstimatedEffort <= 0 || req.EstimatedEffort > 1 {
		return nil, fmt.Errorf("estimated effort must be in (0,1], got %v", req.EstimatedEffort)
	}
	if req.Priority == "" {
		req.Priority = task.PriorityMedium
	}

	now := time.Now().UTC()
	t := &task.Task{
		ID:               uuid.NewString(),
		DecisionID:       req.DecisionID,
		Title:            req.Title,
		Description:      req.Description,
		Type:             req.Type,
		Priority:         req.Priority,
		RequiredSkills:   req.RequiredSkills,
		RequiredRole:     req.RequiredRole,
		Complexity:       req.Complexity,
		Status:           task.StatusPending,
		Deadline:         req.Deadline,
		EstimatedEffort:  req.EstimatedEffort,
		EstimatedMinutes: req.EstimatedMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	d.mu.Lock()
	d.tasks[t.ID] = t
	snap := *t
	d.mu.Unlock()

	slog.Info("task created", "task_id", snap.ID, "decision_id", snap.DecisionID, "priority", snap.Priority)
	d.persist(ctx, &snap)
	publishEvent(ctx, d.bus, d.alerts, "delegation", eventbus.SubjectTaskCreated, &snap)
	d.broadcast(ctx, &snap)

	return &snap, nil
}

// RegisterOperator adds or replaces an operator in the pool and retries any
// pending tasks that may now be assignable.
func (d *Delegation) RegisterOperator(ctx context.Context, op task.Operator) error {
	if op.ID == "" {
		return fmt.Errorf("operator id is required")
	}
	if op.Status == "" {
		op.Status = task.OperatorAvailable
	}
	if op.Workload < 0 || op.Workload > 1 {
		return fmt.Errorf("operator workload must be in [0,1], got %v", op.Workload)
	}

	d.mu.Lock()
	d.operators[op.ID] = &op
	d.mu.Unlock()

	slog.Info("operator registered", "operator_id", op.ID, "role", op.Role, "skills", op.Skills)
	d.Sweep(ctx)
	return nil
}

// SetOperatorStatus updates an operator's availability. Becoming available
// retries pending tasks.
func (d *Delegation) SetOperatorStatus(ctx context.Context, id string, status task.OperatorStatus) error {
	d.mu.Lock()
	op, ok := d.operators[id]
	if !ok {
		d.mu.Unlock()
		return domain.ErrNotFound
	}
	op.Status = status
	d.mu.Unlock()

	if status == task.OperatorAvailable {
		d.Sweep(ctx)
	}
	return nil
}

// Assign picks the best eligible operator for the task. A nil operator with
// a nil error means no operator qualifies right now; the task stays pending
// and is retried on the next availability change or sweep.
func (d *Delegation) Assign(ctx context.Context, taskID string) (*task.Operator, error) {
	ctx, span := adotel.StartAssignmentSpan(ctx, taskID)
	defer span.End()

	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok {
		d.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	if t.Status != task.StatusPending {
		status := t.Status
		d.mu.Unlock()
		return nil, fmt.Errorf("task %s is %s: %w", taskID, status, domain.ErrInvalidTransition)
	}

	best := d.pickOperatorLocked(t)
	if best == nil {
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.TasksUnassignable.Add(ctx, 1)
		}
		slog.Debug("no eligible operator", "task_id", taskID)
		return nil, nil
	}

	best.Workload += t.EstimatedEffort
	best.LastAssignedAt = time.Now().UTC()
	if best.Workload >= 1 {
		best.Status = task.OperatorBusy
	}
	t.Status = task.StatusAssigned
	t.OperatorID = best.ID
	t.UpdatedAt = time.Now().UTC()
	opCopy := *best
	snap := *t
	d.mu.Unlock()

	slog.Info("task assigned", "task_id", taskID, "operator_id", opCopy.ID, "workload", opCopy.Workload)
	if d.metrics != nil {
		d.metrics.TasksAssigned.Add(ctx, 1)
		d.metrics.AssignmentScore.Record(ctx, d.score(&opCopy))
	}
	d.persist(ctx, &snap)
	publishEvent(ctx, d.bus, d.alerts, "delegation", eventbus.SubjectTaskAssigned, &snap)
	d.broadcast(ctx, &snap)

	return &opCopy, nil
}

// pickOperatorLocked returns the eligible operator with the highest weighted
// score, ties broken by earliest last assignment. Caller holds d.mu.
func (d *Delegation) pickOperatorLocked(t *task.Task) *task.Operator {
	var best *task.Operator
	var bestScore float64

	for _, op := range d.operators {
		if op.Status != task.OperatorAvailable {
			continue
		}
		if !op.HasSkill(t.RequiredSkills) {
			continue
		}
		if t.RequiredRole != "" && op.Role != t.RequiredRole {
			continue
		}
		if op.Workload+t.EstimatedEffort > 1.0 {
			continue
		}

		s := d.score(op)
		if best == nil || s > bestScore ||
			(s == bestScore && op.LastAssignedAt.Before(best.LastAssignedAt)) {
			best = op
			bestScore = s
		}
	}
	return best
}

// score is the tunable weighted assignment policy.
func (d *Delegation) score(op *task.Operator) float64 {
	return op.Performance.CompletionRate*d.cfg.CompletionRateWeight +
		op.Performance.AverageQuality/5*d.cfg.QualityWeight +
		(1-op.Workload)*d.cfg.IdleWeight
}

// Start moves an assigned task to in_progress.
func (d *Delegation) Start(ctx context.Context, taskID string) error {
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok {
		d.mu.Unlock()
		return domain.ErrNotFound
	}
	if t.Status != task.StatusAssigned {
		status := t.Status
		d.mu.Unlock()
		return fmt.Errorf("task %s is %s: %w", taskID, status, domain.ErrInvalidTransition)
	}
	t.Status = task.StatusInProgress
	t.UpdatedAt = time.Now().UTC()
	snap := *t
	d.mu.Unlock()

	d.persist(ctx, &snap)
	d.broadcast(ctx, &snap)
	return nil
}

// Complete finishes a task, updates the operator's rolling performance with
// an exponential moving average, and releases the reserved capacity.
func (d *Delegation) Complete(ctx context.Context, taskID string, outcome task.Outcome) error {
	d.mu.Lock()
	t, ok := d.tasks[taskID]
	if !ok {
		d.mu.Unlock()
		return domain.ErrNotFound
	}
	if t.Status != task.StatusAssigned && t.Status != task.StatusInProgress {
		status := t.Status
		d.mu.Unlock()
		return fmt.Errorf("task %s is %s: %w", taskID, status, domain.ErrInvalidTransition)
	}

	if outcome.Success {
		t.Status = task.StatusCompleted
	} else {
		t.Status = task.StatusFailed
	}
	t.ActualMinutes = outcome.ActualMinutes
	t.UpdatedAt = time.Now().UTC()

	if op, ok := d.operators[t.OperatorID]; ok {
		alpha := d.cfg.PerformanceAlpha
		success := 0.0
		if outcome.Success {
			success = 1.0
		}
		op.Performance.CompletionRate = (1-alpha)*op.Performance.CompletionRate + alpha*success
		if outcome.Quality > 0 {
			op.Performance.AverageQuality = (1-alpha)*op.Performance.AverageQuality + alpha*outcome.Quality
		}
		op.Performance.TasksCompleted++
		op.Workload -= t.EstimatedEffort
		if op.Workload < 0 {
			op.Workload = 0
		}
		if op.Status == task.OperatorBusy && op.Workload < 1 {
			op.Status = task.OperatorAvailable
		}
	}
	snap := *t
	d.mu.Unlock()

	slog.Info("task finished", "task_id", taskID, "status", snap.Status, "quality", outcome.Quality)
	d.persist(ctx, &snap)
	subject := eventbus.SubjectTaskCompleted
	if !outcome.Success {
		subject = eventbus.SubjectTaskFailed
	}
	publishEvent(ctx, d.bus, d.alerts, "delegation", subject, &snap)
	d.broadcast(ctx, &snap)

	// Freed capacity may unblock a pending task.
	d.Sweep(ctx)
	return nil
}

// GetTask returns a copy of the task with the given ID.
func (d *Delegation) GetTask(id string) (*task.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTasks returns copies of all tasks.
func (d *Delegation) ListTasks() []task.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]task.Task, 0, len(d.tasks))
	for _, t := range d.tasks {
		out = append(out, *t)
	}
	return out
}

// ListOperators returns copies of all registered operators.
func (d *Delegation) ListOperators() []task.Operator {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]task.Operator, 0, len(d.operators))
	for _, op := range d.operators {
		out = append(out, *op)
	}
	return out
}

// Sweep retries assignment for every pending task. Registered as a periodic
// scheduler job and also run after operator availability changes.
func (d *Delegation) Sweep(ctx context.Context) {
	d.mu.Lock()
	var pending []string
	for id, t := range d.tasks {
		if t.Status == task.StatusPending {
			pending = append(pending, id)
		}
	}
	d.mu.Unlock()

	for _, id := range pending {
		if _, err := d.Assign(ctx, id); err != nil {
			slog.Warn("sweep assignment failed", "task_id", id, "error", err)
		}
	}
}

func (d *Delegation) persist(ctx context.Context, t *task.Task) {
	if d.store == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		slog.Error("marshal task audit", "task_id", t.ID, "error", err)
		return
	}
	if err := d.store.Store(ctx, memorystore.Key("hitl", "task", t.ID), data); err != nil {
		slog.Warn("task audit write failed", "task_id", t.ID, "error", err)
		if d.alerts != nil {
			d.alerts.Raise(ctx, alert.LevelWarning, "delegation",
				"task audit write failed",
				map[string]any{"task_id": t.ID, "error": err.Error()})
		}
	}
}

func (d *Delegation) broadcast(ctx context.Context, t *task.Task) {
	if d.hub == nil {
		return
	}
	d.hub.BroadcastEvent(ctx, ws.EventTaskStatus, ws.TaskStatusEvent{
		TaskID:     t.ID,
		DecisionID: t.DecisionID,
		Status:     string(t.Status),
		OperatorID: t.OperatorID,
	})
}

// Health reports delegation status for the supervisor's health loop.
func (d *Delegation) Health(_ context.Context) ComponentHealth {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending, active := 0, 0
	for _, t := range d.tasks {
		switch t.Status {
		case task.StatusPending:
			pending++
		case task.StatusAssigned, task.StatusInProgress:
			active++
		}
	}
	available := 0
	for _, op := range d.operators {
		if op.Status == task.OperatorAvailable {
			available++
		}
	}

	return ComponentHealth{
		Name: "delegation",
		// A pool with pending work and nobody available is degraded.
		Healthy: pending == 0 || available > 0,
		Details: map[string]any{
			"pending_tasks":       pending,
			"active_tasks":        active,
			"operators":           len(d.operators),
			"operators_available": available,
		},
	}
}
