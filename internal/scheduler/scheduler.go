// Package scheduler runs the notification passes on in-process tickers, for
// deployments without a Temporal cluster.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

// Job is one periodic pass.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// Timeout bounds one run. Zero means ten minutes.
	Timeout time.Duration
}

// Scheduler runs jobs on their intervals until stopped. Runs of one job
// never overlap; a run that outlasts its interval delays the next tick.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	jobs   []Job
	logger *logging.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler. Every job needs a name, a positive interval and
// a run function.
func New(logger *logging.Logger, jobs ...Job) (*Scheduler, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	for _, j := range jobs {
		if j.Name == "" || j.Run == nil {
			return nil, fmt.Errorf("job needs a name and a run function")
		}
		if j.Interval <= 0 {
			return nil, fmt.Errorf("job %s: interval must be positive", j.Name)
		}
	}
	return &Scheduler{jobs: jobs, logger: logger}, nil
}

// Start launches one goroutine per job. Starting a running scheduler is an
// error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.logger.Info(ctx, "scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels in-flight runs and waits for every loop to exit. Stopping a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

// safeRun executes one run, recovering a panic so the loop survives.
func (s *Scheduler) safeRun(ctx context.Context, j Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "scheduled job panicked",
				zap.String("job", j.Name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Run(runCtx); err != nil {
		s.logger.Error(ctx, "scheduled job failed", zap.String("job", j.Name), zap.Error(err))
		return
	}
	s.logger.Debug(ctx, "scheduled job finished",
		zap.String("job", j.Name),
		zap.Duration("duration", time.Since(start)))
}
