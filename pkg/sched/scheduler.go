// Package sched runs named jobs on simple recurring schedules. Each job
// gets its own timer goroutine; a panicking job is logged and the schedule
// keeps ticking.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guildbot/pkg/logx"
)

// Job is a named task bound to a schedule.
type Job struct {
	Run      func(ctx context.Context)
	Name     string
	Schedule Schedule
}

// Scheduler fires registered jobs at their scheduled times.
type Scheduler struct {
	logger  *logx.Logger
	cancel  context.CancelFunc
	jobs    []Job
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{logger: logx.NewLogger("sched")}
}

// Add registers a job under the given schedule expression. Jobs must be
// added before Start.
func (s *Scheduler) Add(name, expr string, run func(ctx context.Context)) error {
	schedule, err := Parse(expr)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cannot add job %s: scheduler already started", name)
	}
	s.jobs = append(s.jobs, Job{Name: name, Schedule: schedule, Run: run})
	return nil
}

// Start launches one timer goroutine per registered job. Stopping the
// context (or calling Stop) shuts them all down.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, job)
	}
	s.logger.Info("⏰ Scheduler started with %d job(s)", len(s.jobs))
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	defer s.wg.Done()

	for {
		next := job.Schedule.NextAfter(time.Now())
		s.logger.Info("⏰ Job %s next fires at %s", job.Name, next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, job)
		}
	}
}

// fire runs one job invocation. Panics are contained here so a bad job
// cannot kill its own schedule.
func (s *Scheduler) fire(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("💥 Job %s panicked: %v", job.Name, r)
		}
	}()

	start := time.Now()
	job.Run(ctx)
	s.logger.Info("⏰ Job %s completed in %s", job.Name, time.Since(start).Round(time.Millisecond))
}

// Stop cancels all job goroutines and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
