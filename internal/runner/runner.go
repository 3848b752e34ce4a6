// Package runner executes reconciliation runs for the CLI and the scheduler.
//
// A Runner owns everything around one Orchestrator.Run: the cross-process
// lock that keeps two runs from overlapping, opening the snapshot source,
// recording metrics, archiving the input file and remembering the latest
// result for the ops server.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/JonMunkholm/rostersync/internal/config"
	"github.com/JonMunkholm/rostersync/internal/logging"
	"github.com/JonMunkholm/rostersync/internal/metrics"
	"github.com/JonMunkholm/rostersync/internal/roster"
	"github.com/JonMunkholm/rostersync/internal/source"
)

// LockFile is created in the output directory while a run is in progress.
const LockFile = ".rostersync.lock"

// RunOptions overrides the configured defaults for a single run.
type RunOptions struct {
	InputPath string // default: ROSTER_INPUT_PATH
	DryRun    bool
	Workers   int // default: ROSTER_WORKERS
}

// Status is the latest run as reported by the ops server.
type Status struct {
	Running    bool              `json:"running"`
	Phase      roster.Phase      `json:"phase,omitempty"`
	Progress   int               `json:"progressPercent"`
	Result     *roster.RunResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Archived   string            `json:"archived,omitempty"`
}

// Runner runs reconciliations against one store with one roster configuration.
type Runner struct {
	store roster.Store
	cfg   config.RosterConfig
	now   func() time.Time

	mu     sync.Mutex
	status Status
}

// New creates a Runner.
func New(store roster.Store, cfg config.RosterConfig) *Runner {
	return &Runner{store: store, cfg: cfg, now: time.Now}
}

// Status returns a snapshot of the latest run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Running reports whether a run is in progress in this process.
func (r *Runner) Running() bool {
	return r.Status().Running
}

// Run performs one reconciliation. It fails with roster.ErrRunInProgress
// (code RUN002) when another run, in this or another process, holds the lock.
//
// The returned result follows Orchestrator.Run: non-nil on fatal errors too,
// listing the error log artifact.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*roster.RunResult, error) {
	logger := logging.FromContext(ctx)

	if opts.InputPath == "" {
		opts.InputPath = r.cfg.InputPath
	}
	if opts.Workers <= 0 {
		opts.Workers = r.cfg.Workers
	}

	unlock, err := r.lock()
	if err != nil {
		metrics.ObserveRun(nil, err)
		logger.Warn("run skipped", "error", err)
		return nil, err
	}
	defer unlock()

	r.setStatus(func(s *Status) {
		*s = Status{Running: true, Phase: roster.PhaseStarting}
	})

	orch := roster.NewOrchestrator(r.store, roster.DirSink{Dir: r.cfg.OutputDir}, roster.Options{
		Workers:       opts.Workers,
		ProgressEvery: r.cfg.ProgressEvery,
		RecordTimeout: r.cfg.RecordTimeout,
		RoleName:      r.cfg.DefaultRole,
		DryRun:        opts.DryRun,
		Logger:        logger,
		Progress:      r.onProgress(logger),
	})

	result, err := orch.Run(ctx, r.openSource(opts.InputPath))
	metrics.ObserveRun(result, err)

	var archived string
	if err == nil && r.cfg.ArchiveInput && !opts.DryRun && !result.Cancelled {
		if archived, err = source.Archive(opts.InputPath, r.now()); err != nil {
			// Not fatal: the next run reprocesses the same file.
			logger.Error("archive roster input", "path", opts.InputPath, "error", err)
			archived, err = "", nil
		} else {
			logger.Info("roster input archived", "path", archived)
		}
	}

	finished := r.now()
	r.setStatus(func(s *Status) {
		s.Running = false
		s.Result = result
		s.FinishedAt = &finished
		s.Archived = archived
		s.Error = ""
		if err != nil {
			s.Error = err.Error()
		}
	})

	return result, err
}

// lock takes the run lock in the output directory.
func (r *Runner) lock() (func(), error) {
	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	fl := flock.New(filepath.Join(r.cfg.OutputDir, LockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, &roster.RunError{
			Kind: roster.KindInternal,
			Code: "RUN002",
			Err:  fmt.Errorf("%w: %s is locked", roster.ErrRunInProgress, fl.Path()),
		}
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("release run lock", "error", err)
		}
	}, nil
}

// openSource picks the reader for path. A path the reader cannot handle
// becomes a source whose Open fails, so the orchestrator reports it as an
// unavailable snapshot with the usual error log.
func (r *Runner) openSource(path string) roster.SnapshotSource {
	src, err := source.New(path, source.Options{
		Sheet:    r.cfg.Sheet,
		Encoding: r.cfg.CSVEncoding,
	})
	if err != nil {
		return unavailableSource{location: path, err: err}
	}
	return src
}

func (r *Runner) onProgress(logger *slog.Logger) roster.ProgressFunc {
	return func(p roster.Progress) {
		r.setStatus(func(s *Status) {
			s.Phase = p.Phase
			s.Progress = p.Percent()
		})
		logger.Debug("run progress",
			"phase", p.Phase,
			"processed", p.Processed,
			"total", p.Total,
			"errored", p.Errored,
		)
	}
}

func (r *Runner) setStatus(fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}

type unavailableSource struct {
	location string
	err      error
}

func (s unavailableSource) Open(context.Context) (*roster.Snapshot, error) {
	return nil, s.err
}

func (s unavailableSource) Location() string {
	return s.location
}

// IsSkipped reports whether err means the run never started because
// another run held the lock.
func IsSkipped(err error) bool {
	return errors.Is(err, roster.ErrRunInProgress)
}
