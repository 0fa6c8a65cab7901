// Package scheduler runs the periodic background tasks of the lobby service,
// such as keepalive broadcasts and telemetry publication.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// TaskFunc is one periodic unit of work. It must not block for long; the
// ticker does not skip a fire while a slow task runs.
type TaskFunc func(ctx context.Context)

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
}

// Scheduler fires a set of named tasks, each on its own interval.
type Scheduler struct {
	tasks []task
}

// NewScheduler creates an empty task scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// AddTask registers a task to run every interval. Tasks with a non-positive
// interval are ignored. All tasks must be added before Start.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn TaskFunc) {
	if interval <= 0 {
		log.Warn().Str("task", name).Msg("task has non-positive interval, skipping")
		return
	}
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// Start runs every registered task loop and blocks until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Int("tasks", len(s.tasks)).Msg("scheduler started")

	for _, t := range s.tasks {
		go s.runLoop(ctx, t)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, t task) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Debug().Str("task", t.name).Dur("interval", t.interval).Msg("task loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTask(ctx, t)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", t.name).Interface("panic", r).Msg("task panicked")
		}
	}()
	t.fn(ctx)
}
