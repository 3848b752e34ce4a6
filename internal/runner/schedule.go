package runner

import (
	"context"
	"time"

	"github.com/JonMunkholm/rostersync/internal/logging"
)

// Scheduler runs reconciliations periodically and on demand.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	opts     RunOptions
	trigger  chan struct{}
}

// NewScheduler creates a Scheduler running r every interval with opts.
func NewScheduler(r *Runner, interval time.Duration, opts RunOptions) *Scheduler {
	return &Scheduler{
		runner:   r,
		interval: interval,
		opts:     opts,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a run as soon as the scheduler is idle. It returns false
// if a run is already in progress or queued.
func (s *Scheduler) Trigger() bool {
	if s.runner.Running() {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start runs immediately, then every interval and on each Trigger, until ctx
// is cancelled. Run failures are logged and never stop the loop; cancelling
// ctx also cancels the run in progress, which still writes its artifacts.
func (s *Scheduler) Start(ctx context.Context) {
	logger := logging.FromContext(ctx)
	logger.Info("scheduler started", "interval", s.interval, "input", s.opts.InputPath)

	tick := 0
	run := func(reason string) {
		tick++
		runCtx := logging.ContextWith(ctx, "tick", tick, "trigger", reason)
		start := time.Now()

		result, err := s.runner.Run(runCtx, s.opts)
		l := logging.FromContext(runCtx)
		switch {
		case IsSkipped(err):
			l.Warn("scheduled run skipped, another run holds the lock")
		case err != nil:
			l.Error("scheduled run failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		default:
			l.Info("scheduled run completed",
				"processed", result.Summary.Processed,
				"errored", result.Summary.Errored,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}

	run("startup")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			run("interval")
		case <-s.trigger:
			run("manual")
		}
	}
}
