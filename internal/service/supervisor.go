package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/revloop/overseer/internal/adapter/ws"
	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/alert"
	"github.com/revloop/overseer/internal/port/memorystore"
)

// System states reported by the supervisor.
const (
	SystemRunning     = "running"
	SystemDegraded    = "degraded"
	SystemMaintenance = "maintenance"
	SystemShutdown    = "shutdown"
)

// Components collects the supervised core services. All fields are required.
type Components struct {
	Orchestrator *Orchestrator
	Delegation   *Delegation
	Workflow     *Workflow
	Tracker      *Tracker
	Swarm        *Swarm
}

// SystemStatus is one health check's aggregate view of the core.
type SystemStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Alerts     int                        `json:"unacknowledged_alerts"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Supervisor owns system-level concerns: the periodic job scheduler, the
// health loop, the alert registry, and maintenance mode. It is assembled last
// and started first.
type Supervisor struct {
	cfg    config.Config
	comps  Components
	sched  *Scheduler
	alerts *AlertRegistry
	store  memorystore.Store
	hub    *ws.Hub

	mu          sync.Mutex
	baseCtx     context.Context
	maintenance bool
	shutdown    bool
	last        SystemStatus
}

// NewSupervisor wires the supervisor over fully constructed components.
// A missing component or collaborator is a programming error and fails fast.
func NewSupervisor(cfg config.Config, comps Components, sched *Scheduler, alerts *AlertRegistry, store memorystore.Store, hub *ws.Hub) (*Supervisor, error) {
	switch {
	case comps.Orchestrator == nil:
		return nil, fmt.Errorf("supervisor: orchestrator: %w", domain.ErrDependencyMissing)
	case comps.Delegation == nil:
		return nil, fmt.Errorf("supervisor: delegation: %w", domain.ErrDependencyMissing)
	case comps.Workflow == nil:
		return nil, fmt.Errorf("supervisor: workflow: %w", domain.ErrDependencyMissing)
	case comps.Tracker == nil:
		return nil, fmt.Errorf("supervisor: tracker: %w", domain.ErrDependencyMissing)
	case comps.Swarm == nil:
		return nil, fmt.Errorf("supervisor: swarm: %w", domain.ErrDependencyMissing)
	case sched == nil:
		return nil, fmt.Errorf("supervisor: scheduler: %w", domain.ErrDependencyMissing)
	case alerts == nil:
		return nil, fmt.Errorf("supervisor: alert registry: %w", domain.ErrDependencyMissing)
	}

	s := &Supervisor{
		cfg:    cfg,
		comps:  comps,
		sched:  sched,
		alerts: alerts,
		store:  store,
		hub:    hub,
	}
	s.registerJobs()
	return s, nil
}

// registerJobs hands every periodic concern of the core to the scheduler.
// No component starts its own timers.
func (s *Supervisor) registerJobs() {
	s.sched.Register(Job{
		Name:     "health_check",
		Interval: s.cfg.Supervisor.HealthCheckInterval,
		Run:      func(ctx context.Context) { s.CheckHealth(ctx) },
	})
	s.sched.Register(Job{
		Name:     "workflow_timeout_scan",
		Interval: s.cfg.Supervisor.TimeoutScanInterval,
		Run:      func(ctx context.Context) { s.comps.Workflow.ScanTimeouts(ctx, time.Now().UTC()) },
	})
	s.sched.Register(Job{
		Name:     "review_timeout_scan",
		Interval: s.cfg.Supervisor.TimeoutScanInterval,
		Run:      func(ctx context.Context) { s.comps.Orchestrator.ScanOverdue(ctx, time.Now().UTC()) },
	})
	s.sched.Register(Job{
		Name:     "progress_snapshot",
		Interval: s.cfg.Tracker.SnapshotInterval,
		Run:      func(ctx context.Context) { s.comps.Tracker.SnapshotAll(ctx, time.Now().UTC()) },
	})
	s.sched.Register(Job{
		Name:     "delegation_sweep",
		Interval: s.cfg.Delegation.SweepInterval,
		Run:      func(ctx context.Context) { s.comps.Delegation.Sweep(ctx) },
	})
	s.sched.Register(Job{
		Name:     "alert_gc",
		Interval: s.cfg.Supervisor.AlertRetention / 4,
		Run: func(context.Context) {
			if n := s.alerts.GC(time.Now().UTC()); n > 0 {
				slog.Info("alert gc", "removed", n)
			}
		},
	})
}

// Start launches the scheduler and takes an immediate first health reading.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.sched.Start(ctx)
	s.CheckHealth(ctx)
	slog.Info("supervisor started", "health_interval", s.cfg.Supervisor.HealthCheckInterval)
}

// CheckHealth fans out to every component concurrently, aggregates the
// results, persists the snapshot, and pushes it to the dashboard. Any
// unhealthy component degrades the system.
func (s *Supervisor) CheckHealth(ctx context.Context) SystemStatus {
	reporters := []HealthReporter{
		s.comps.Orchestrator,
		s.comps.Delegation,
		s.comps.Workflow,
		s.comps.Tracker,
		s.comps.Swarm,
	}

	results := make([]ComponentHealth, len(reporters))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reporters {
		g.Go(func() error {
			results[i] = r.Health(gctx)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // reporters never error; fan-out only

	status := SystemStatus{
		Status:     SystemRunning,
		Components: make(map[string]ComponentHealth, len(results)),
		Alerts:     s.alerts.Unacknowledged(),
		CheckedAt:  time.Now().UTC(),
	}
	for _, h := range results {
		status.Components[h.Name] = h
		if !h.Healthy {
			status.Status = SystemDegraded
		}
	}

	s.mu.Lock()
	switch {
	case s.shutdown:
		status.Status = SystemShutdown
	case s.maintenance:
		status.Status = SystemMaintenance
	}
	wasDegraded := s.last.Status == SystemDegraded
	s.last = status
	s.mu.Unlock()

	if status.Status == SystemDegraded && !wasDegraded {
		unhealthy := make([]string, 0, 1)
		for name, h := range status.Components {
			if !h.Healthy {
				unhealthy = append(unhealthy, name)
			}
		}
		s.alerts.Raise(ctx, alert.LevelError, "supervisor",
			"system degraded", map[string]any{"components": unhealthy})
	}

	s.persistStatus(ctx, &status)
	if s.hub != nil {
		comps := make(map[string]string, len(status.Components))
		for name, h := range status.Components {
			if h.Healthy {
				comps[name] = "healthy"
			} else {
				comps[name] = "unhealthy"
			}
		}
		s.hub.BroadcastEvent(ctx, ws.EventSystemStatus, ws.SystemStatusEvent{
			Status:     status.Status,
			Components: comps,
		})
	}
	return status
}

// Status returns the most recent health reading.
func (s *Supervisor) Status() SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// EnableMaintenance stops every periodic job. In-flight decisions, tasks, and
// workflow executions are left exactly as they are; only the timers pause.
func (s *Supervisor) EnableMaintenance(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("system is shut down: %w", domain.ErrInvalidTransition)
	}
	if s.maintenance {
		s.mu.Unlock()
		return nil
	}
	s.maintenance = true
	s.last.Status = SystemMaintenance
	s.mu.Unlock()

	s.sched.Stop()
	slog.Warn("maintenance mode enabled")
	s.alerts.Raise(ctx, alert.LevelWarning, "supervisor", "maintenance mode enabled", nil)
	s.persistFlag(ctx, true)
	return nil
}

// DisableMaintenance restarts the scheduler and resumes normal operation.
func (s *Supervisor) DisableMaintenance(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("system is shut down: %w", domain.ErrInvalidTransition)
	}
	if !s.maintenance {
		s.mu.Unlock()
		return nil
	}
	s.maintenance = false
	base := s.baseCtx
	s.mu.Unlock()

	if base == nil {
		base = ctx
	}
	s.sched.Start(base)
	slog.Info("maintenance mode disabled")
	s.persistFlag(ctx, false)
	s.CheckHealth(ctx)
	return nil
}

// Maintenance reports whether the core is in maintenance mode.
func (s *Supervisor) Maintenance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maintenance
}

// Shutdown stops the scheduler for good. Idempotent.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.last.Status = SystemShutdown
	s.mu.Unlock()

	s.sched.Stop()
	s.comps.Tracker.Close()
	status := SystemStatus{Status: SystemShutdown, CheckedAt: time.Now().UTC()}
	s.persistStatus(ctx, &status)
	slog.Info("supervisor shut down")
}

func (s *Supervisor) persistStatus(ctx context.Context, status *SystemStatus) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		slog.Error("marshal system status", "error", err)
		return
	}
	key := memorystore.Key("system", "status", strconv.FormatInt(status.CheckedAt.Unix(), 10))
	if err := s.store.Store(ctx, key, data); err != nil {
		slog.Warn("system status write failed", "error", err)
	}
}

func (s *Supervisor) persistFlag(ctx context.Context, on bool) {
	if s.store == nil {
		return
	}
	key := memorystore.Key("system", "maintenance", "flag")
	if err := s.store.Store(ctx, key, []byte(strconv.FormatBool(on))); err != nil {
		slog.Warn("maintenance flag write failed", "error", err)
	}
}
