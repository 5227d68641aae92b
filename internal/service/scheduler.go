package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one periodic unit of work owned by the scheduler.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler owns every periodic timer in the core. Components never start
// their own tickers; the supervisor registers their jobs here and stops them
// as a unit on shutdown or maintenance, so no timer can fire against
// torn-down state.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Register adds a job. Takes effect on the next Start; registering while
// running is a programming error and is ignored with a log.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		slog.Error("scheduler: register while running ignored", "job", job.Name)
		return
	}
	s.jobs = append(s.jobs, job)
}

// Start launches one ticker goroutine per registered job.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	slog.Info("scheduler started", "jobs", len(s.jobs))
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.Run(ctx)
		}
	}
}

// Stop cancels all job timers and waits for in-flight runs to return.
// Idempotent; entities the jobs were watching are left untouched.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// Running reports whether the scheduler's timers are live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
