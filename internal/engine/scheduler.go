package engine

import (
	"context"
	"log/slog"
	"time"
)

// Task is a unit of scheduled work. Tasks run sequentially on the
// scheduler goroutine and are expected to honor ctx cancellation at their
// own safe boundaries.
type Task func(ctx context.Context)

type scheduledTask struct {
	name     string
	interval time.Duration
	task     Task
	next     time.Time
}

// Scheduler is a cooperative periodic-task runner: one goroutine, a
// one-second tick, due tasks executed in registration order. No task ever
// runs concurrently with another, which keeps the case-uniqueness and
// model-swap invariants easy to reason about.
type Scheduler struct {
	tasks []*scheduledTask
	tick  time.Duration
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{tick: time.Second}
}

// Register adds a task that first fires one interval after Run starts.
func (s *Scheduler) Register(name string, interval time.Duration, task Task) {
	s.tasks = append(s.tasks, &scheduledTask{
		name:     name,
		interval: interval,
		task:     task,
	})
}

// Run blocks until ctx is cancelled. A task that is due when ctx is
// already cancelled does not start; a task already running finishes.
func (s *Scheduler) Run(ctx context.Context) {
	now := time.Now()
	for _, t := range s.tasks {
		t.next = now.Add(t.interval)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	slog.Info("scheduler started", "tasks", len(s.tasks))

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			for _, t := range s.tasks {
				if now.Before(t.next) {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				start := time.Now()
				t.task(ctx)
				t.next = time.Now().Add(t.interval)
				slog.Debug("scheduled task completed",
					"task", t.name,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}
