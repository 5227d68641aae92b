package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsJobs(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int64
	s.Register(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run:      func(context.Context) { runs.Add(1) },
	})

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("job ran %d times, want >= 3", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSchedulerStopHaltsJobs(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int64
	s.Register(Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run:      func(context.Context) { runs.Add(1) },
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if s.Running() {
		t.Fatal("scheduler still running after Stop")
	}

	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != settled {
		t.Errorf("job kept running after Stop: %d -> %d", settled, runs.Load())
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s := NewScheduler()
	s.Register(Job{Name: "noop", Interval: time.Hour, Run: func(context.Context) {}})

	s.Start(context.Background())
	s.Stop()
	s.Stop() // must not panic or block
}

func TestSchedulerRestart(t *testing.T) {
	s := NewScheduler()

	var runs atomic.Int64
	s.Register(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run:      func(context.Context) { runs.Add(1) },
	})

	s.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	first := runs.Load()
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runs.Load() <= first {
		select {
		case <-deadline:
			t.Fatal("jobs did not resume after restart")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRegisterWhileRunningIgnored(t *testing.T) {
	s := NewScheduler()
	s.Start(context.Background())
	defer s.Stop()

	var runs atomic.Int64
	s.Register(Job{
		Name:     "late",
		Interval: 5 * time.Millisecond,
		Run:      func(context.Context) { runs.Add(1) },
	})

	time.Sleep(30 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("late-registered job ran %d times, want 0", runs.Load())
	}
}
