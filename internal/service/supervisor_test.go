package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revloop/overseer/internal/config"
	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/task"
	"github.com/revloop/overseer/internal/resilience"
)

func newSupervisorFixture(t *testing.T) (*Supervisor, *swarmFixture, *Scheduler) {
	t.Helper()

	f := newSwarmFixture(t, config.Defaults().Swarm)
	sched := NewScheduler()

	cfg := config.Defaults()
	sup, err := NewSupervisor(cfg, Components{
		Orchestrator: f.orch,
		Delegation:   f.deleg,
		Workflow:     f.wf,
		Tracker:      testTracker(f.alerts, nil),
		Swarm:        f.swarm,
	}, sched, f.alerts, newMockStore(), nil)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	return sup, f, sched
}

func TestNewSupervisorFailsFast(t *testing.T) {
	cfg := config.Defaults()
	_, err := NewSupervisor(cfg, Components{}, NewScheduler(), testRegistry(), nil, nil)
	if !errors.Is(err, domain.ErrDependencyMissing) {
		t.Fatalf("NewSupervisor = %v, want ErrDependencyMissing", err)
	}
}

func TestCheckHealthAllHealthy(t *testing.T) {
	sup, _, _ := newSupervisorFixture(t)

	status := sup.CheckHealth(context.Background())
	if status.Status != SystemRunning {
		t.Errorf("status = %s, want running", status.Status)
	}
	for _, name := range []string{"orchestrator", "delegation", "workflow", "tracker", "swarm"} {
		h, ok := status.Components[name]
		if !ok {
			t.Errorf("component %s missing from health report", name)
			continue
		}
		if !h.Healthy {
			t.Errorf("component %s unhealthy: %v", name, h.Details)
		}
	}
}

func TestCheckHealthDegradedOnPendingWithoutOperators(t *testing.T) {
	sup, f, _ := newSupervisorFixture(t)

	// A pending task with nobody available degrades delegation.
	if _, err := f.deleg.CreateTask(context.Background(), task.CreateRequest{
		Title: "orphan", EstimatedEffort: 0.2,
	}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	status := sup.CheckHealth(context.Background())
	if status.Status != SystemDegraded {
		t.Errorf("status = %s, want degraded", status.Status)
	}
}

func TestCheckHealthDegradedOnOpenBreaker(t *testing.T) {
	f := newSwarmFixture(t, config.Defaults().Swarm)

	breaker := resilience.NewBreaker(1, time.Hour)
	breaker.Execute(func() error { return context.DeadlineExceeded }) // trips it

	s, err := NewSwarm(config.Defaults().Swarm, f.orch, f.deleg, f.wf,
		testTracker(f.alerts, nil), f.coord, f.bus, newMockStore(), f.alerts, breaker, nil)
	if err != nil {
		t.Fatalf("NewSwarm: %v", err)
	}

	h := s.Health(context.Background())
	if h.Healthy {
		t.Error("swarm healthy with open breaker, want degraded")
	}
}

func TestMaintenanceStopsScheduler(t *testing.T) {
	sup, _, sched := newSupervisorFixture(t)
	ctx := context.Background()

	sup.Start(ctx)
	if !sched.Running() {
		t.Fatal("scheduler not running after Start")
	}

	if err := sup.EnableMaintenance(ctx); err != nil {
		t.Fatalf("EnableMaintenance: %v", err)
	}
	if sched.Running() {
		t.Error("scheduler running in maintenance mode")
	}
	if !sup.Maintenance() {
		t.Error("Maintenance() = false, want true")
	}
	if sup.Status().Status != SystemMaintenance {
		t.Errorf("status = %s, want maintenance", sup.Status().Status)
	}

	if err := sup.DisableMaintenance(ctx); err != nil {
		t.Fatalf("DisableMaintenance: %v", err)
	}
	if !sched.Running() {
		t.Error("scheduler not restarted after maintenance")
	}

	sup.Shutdown(ctx)
}

func TestMaintenanceLeavesEntitiesAlone(t *testing.T) {
	sup, f, _ := newSupervisorFixture(t)
	ctx := context.Background()

	d, err := f.orch.Submit(ctx, submitReq(0.6))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	sup.Start(ctx)
	sup.EnableMaintenance(ctx)

	got, err := f.orch.Get(d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != d.Status {
		t.Errorf("decision status changed across maintenance: %s -> %s", d.Status, got.Status)
	}

	sup.Shutdown(ctx)
}

func TestShutdownIdempotentAndFinal(t *testing.T) {
	sup, _, sched := newSupervisorFixture(t)
	ctx := context.Background()

	sup.Start(ctx)
	sup.Shutdown(ctx)
	sup.Shutdown(ctx) // second call is a no-op

	if sched.Running() {
		t.Error("scheduler running after shutdown")
	}
	if sup.Status().Status != SystemShutdown {
		t.Errorf("status = %s, want shutdown", sup.Status().Status)
	}
	if err := sup.EnableMaintenance(ctx); err == nil {
		t.Error("EnableMaintenance after shutdown should fail")
	}
}
