package pipeline

import (
	"context"
	"log"
	"time"
)

// Scheduler runs a cycle function on a fixed interval, switching to a
// shorter backoff wait after a failed cycle. Waits are cancellable, so
// shutdown never blocks on a sleeping loop.
type Scheduler struct {
	interval time.Duration
	backoff  time.Duration
}

// NewScheduler creates a scheduler. A non-positive backoff falls back
// to the interval.
func NewScheduler(interval, backoff time.Duration) *Scheduler {
	if backoff <= 0 {
		backoff = interval
	}
	return &Scheduler{interval: interval, backoff: backoff}
}

// Run invokes fn immediately and then on every tick until ctx is
// cancelled. fn receives ctx so an in-progress cycle can observe the
// shutdown request at its own safe points.
func (s *Scheduler) Run(ctx context.Context, fn func(context.Context) error) {
	for {
		if ctx.Err() != nil {
			log.Printf("[Scheduler] Stopped")
			return
		}

		wait := s.interval
		if err := fn(ctx); err != nil {
			log.Printf("[WARN] Cycle failed: %v (retrying in %s)", err, s.backoff)
			wait = s.backoff
		}

		if !sleepCtx(ctx, wait) {
			log.Printf("[Scheduler] Stopped")
			return
		}
	}
}

// sleepCtx waits for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
