// ABOUTME: Fire-and-forget background job scheduler
// ABOUTME: Runs jobs on detached contexts with timeout, panic recovery, and Wait for tests

package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single background job
const DefaultTimeout = 2 * time.Minute

// Scheduler runs background work detached from the request that spawned it.
// Jobs get a fresh context so a finished or cancelled request never aborts
// persistence. Failures are logged, never propagated.
type Scheduler struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with the given job timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewScheduler(logger *slog.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{
		logger:  logger.With("component", "jobs"),
		timeout: timeout,
	}
}

// Go runs fn in the background under a fresh timeout context. The name is
// used for logging only. Panics are recovered and logged so a bad job cannot
// take down the server.
func (s *Scheduler) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background job panicked", "job", name, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.Error("background job failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		s.logger.Debug("background job finished", "job", name, "duration", time.Since(start))
	}()
}

// Wait blocks until all scheduled jobs have finished. Used during shutdown
// and in tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
