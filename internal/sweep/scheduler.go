// Package sweep runs the periodic reconciliation passes that advance time-driven state even when
// nobody is connected.
package sweep

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 30 * time.Second

// Job is one independent sweep. Run handles its own per-item failures and returns an error only
// when the pass as a whole could not run; the scheduler logs it and tries again next tick.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}

// FuncJob adapts a function to Job, e.g. periodic policy reloads.
type FuncJob struct {
	name string
	fn   func(ctx context.Context, now time.Time) error
}

// NewFuncJob returns a Job named name that calls fn.
func NewFuncJob(name string, fn func(ctx context.Context, now time.Time) error) *FuncJob {
	return &FuncJob{name: name, fn: fn}
}

func (j *FuncJob) Name() string { return j.name }

func (j *FuncJob) Run(ctx context.Context, now time.Time) error { return j.fn(ctx, now) }

// Scheduler runs its jobs once at start and then on every tick. Jobs run one after another on the
// scheduler goroutine, so a pass never overlaps itself.
type Scheduler struct {
	interval time.Duration
	jobs     []Job
	now      func() time.Time
}

// NewScheduler returns a scheduler for jobs.
func NewScheduler(interval time.Duration, jobs ...Job) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, jobs: jobs, now: time.Now}
}

// Run blocks until ctx is cancelled. It always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("sweep: running %d jobs every %s", len(s.jobs), s.interval)
	s.RunOnce(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("sweep: stopped")
			return nil
		case <-t.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every job once. A failing or panicking job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := s.now().UTC()
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		if err := runJob(ctx, j, now); err != nil {
			log.Printf("sweep: %s: %v", j.Name(), err)
		}
	}
}

func runJob(ctx context.Context, j Job, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.Run(ctx, now)
}
