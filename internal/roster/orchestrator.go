package roster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultProgressEvery is how many records pass between progress events.
const DefaultProgressEvery = 50

// DefaultPingTimeout bounds the up-front store connectivity check.
const DefaultPingTimeout = 10 * time.Second

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	Workers       int           // records reconciled in parallel (default: 1, sequential)
	ProgressEvery int           // records between progress events (default: 50)
	RecordTimeout time.Duration // store timeout per record (default: 30s)
	PingTimeout   time.Duration // connectivity check timeout (default: 10s)
	RoleName      string        // role for inserted people (default: "aprendiz")
	DryRun        bool          // classify without persisting
	Progress      ProgressFunc  // optional progress callback
	Logger        *slog.Logger
}

// Orchestrator runs one reconciliation over a roster snapshot.
type Orchestrator struct {
	store      Store
	sink       ArtifactSink
	reconciler *Reconciler
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator creates an Orchestrator reconciling against store and
// writing artifacts to sink.
func NewOrchestrator(store Store, sink ArtifactSink, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPingTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Orchestrator{
		store: store,
		sink:  sink,
		reconciler: NewReconciler(store,
			WithRoleName(opts.RoleName),
			WithRecordTimeout(opts.RecordTimeout),
			WithDryRun(opts.DryRun),
			WithLogger(opts.Logger),
		),
		opts:   opts,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// RunResult is the outcome of one run.
type RunResult struct {
	Summary        RunSummary      `json:"summary"`
	Source         string          `json:"source"`
	Artifacts      []Artifact      `json:"artifacts"`
	ArtifactErrors []ArtifactError `json:"artifactErrors,omitempty"`
	DryRun         bool            `json:"dryRun"`
	Cancelled      bool            `json:"cancelled"`
	Error          string          `json:"error,omitempty"` // non-empty if the run aborted
}

// Artifact returns the location of the artifact of the given kind, if written.
func (r *RunResult) Artifact(kind ArtifactKind) (string, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a.Location, true
		}
	}
	return "", false
}

// Run reconciles the snapshot from src against the store.
//
// A fatal error (source unavailable, empty snapshot, missing columns, store
// unreachable) is returned as a *RunError before any record is touched. The
// returned RunResult is non-nil in that case too: it lists the error log
// artifact and carries a summary with nothing processed.
//
// Record-level failures never surface as an error; they are counted in the
// errored bucket. Cancelling ctx stops scheduling new records, lets in-flight
// ones finish, and still renders artifacts for what was processed.
func (o *Orchestrator) Run(ctx context.Context, src SnapshotSource) (*RunResult, error) {
	runID := uuid.New().String()
	logger := o.logger.With("run_id", runID, "source", src.Location())

	summary := RunSummary{RunID: runID, StartedAt: o.now()}
	result := &RunResult{Source: src.Location(), DryRun: o.opts.DryRun}
	reporter := NewReporter()

	logger.Info("reconciliation started", "dry_run", o.opts.DryRun, "workers", o.opts.Workers)
	o.emit(Progress{RunID: runID, Phase: PhaseReading})

	records, summary, err := o.prepare(ctx, src, summary, logger)
	if err != nil {
		return o.abort(result, reporter, summary, err, logger)
	}

	o.emit(Progress{RunID: runID, Phase: PhaseReconciling, Total: len(records)})
	result.Cancelled = o.reconcileAll(ctx, runID, records, reporter)

	summary.FinishedAt = o.now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	summary = reporter.Fill(summary)
	result.Summary = summary

	o.emit(Progress{RunID: runID, Phase: PhaseReporting, Total: len(records), Processed: summary.Processed, Errored: summary.Errored})
	result.Artifacts, result.ArtifactErrors = reporter.Render(o.sink, RenderInput{
		Summary:   summary,
		Source:    src.Location(),
		DryRun:    o.opts.DryRun,
		Cancelled: result.Cancelled,
	})
	for _, ae := range result.ArtifactErrors {
		logger.Error("artifact write failed", "artifact", ae.Kind, "error", ae.Err)
	}

	phase := PhaseComplete
	if result.Cancelled {
		phase = PhaseCancelled
	}
	o.emit(Progress{RunID: runID, Phase: phase, Total: len(records), Processed: summary.Processed, Errored: summary.Errored})

	logger.Info("reconciliation finished",
		"processed", summary.Processed,
		"new", summary.New,
		"reactivated", summary.Reactivated,
		"deactivated", summary.Deactivated,
		"maintained", summary.Maintained,
		"errored", summary.Errored,
		"dropped", summary.Dropped,
		"duplicates", summary.Duplicates,
		"cancelled", result.Cancelled,
		"duration_ms", summary.Duration.Milliseconds(),
	)

	return result, nil
}

// prepare reads the snapshot, checks connectivity and produces the
// deduplicated records. Nothing here mutates the store.
func (o *Orchestrator) prepare(ctx context.Context, src SnapshotSource, summary RunSummary, logger *slog.Logger) ([]RosterRecord, RunSummary, error) {
	snapshot, err := src.Open(ctx)
	if err != nil {
		return nil, summary, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, src.Location(), err)
	}
	if snapshot == nil || len(snapshot.Header) == 0 {
		return nil, summary, fmt.Errorf("%w: %s", ErrEmptySnapshot, src.Location())
	}
	summary.TotalRows = len(snapshot.Rows)

	o.emit(Progress{RunID: summary.RunID, Phase: PhaseConnecting})
	pingCtx, cancel := context.WithTimeout(ctx, o.opts.PingTimeout)
	err = o.store.Ping(pingCtx)
	cancel()
	if err != nil {
		return nil, summary, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	mapping, err := DetectColumns(snapshot.Header)
	if err != nil {
		return nil, summary, err
	}
	logger.Debug("columns detected",
		"document_type", mapping[FieldDocumentType],
		"document", mapping[FieldDocument],
		"given_name", mapping[FieldGivenName],
		"family_name", mapping[FieldFamilyName],
		"status", mapping[FieldStatus],
	)

	o.emit(Progress{RunID: summary.RunID, Phase: PhaseNormalizing, Total: len(snapshot.Rows)})
	records := make([]RosterRecord, 0, len(snapshot.Rows))
	for i, row := range snapshot.Rows {
		rec, ok := Normalize(row, mapping, snapshot.RowNumber(i))
		if !ok {
			summary.Dropped++
			continue
		}
		records = append(records, rec)
	}

	records, summary.Duplicates = Dedupe(records)
	logger.Info("roster normalized",
		"rows", summary.TotalRows,
		"records", len(records),
		"dropped", summary.Dropped,
		"duplicates", summary.Duplicates,
	)
	return records, summary, nil
}

// abort finishes a run that failed before reconciliation. It renders a
// best-effort error log and returns the classified RunError.
func (o *Orchestrator) abort(result *RunResult, reporter *Reporter, summary RunSummary, err error, logger *slog.Logger) (*RunResult, error) {
	runErr := newRunError(err)

	summary.FinishedAt = o.now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)
	summary = reporter.Fill(summary)
	result.Summary = summary
	result.Error = runErr.Error()

	logger.Error("reconciliation aborted", "code", runErr.Code, "kind", runErr.Kind, "error", runErr.Err)

	result.Artifacts, result.ArtifactErrors = reporter.Render(o.sink, RenderInput{
		Summary: summary,
		Source:  result.Source,
		DryRun:  o.opts.DryRun,
		Fatal:   runErr,
	})
	for _, ae := range result.ArtifactErrors {
		logger.Error("artifact write failed", "artifact", ae.Kind, "error", ae.Err)
	}

	o.emit(Progress{RunID: summary.RunID, Phase: PhaseFailed})
	return result, runErr
}

// reconcileAll reconciles records with up to Workers in flight. A single
// collector goroutine feeds the reporter and emits progress. Returns true
// when ctx was cancelled before every record was scheduled.
func (o *Orchestrator) reconcileAll(ctx context.Context, runID string, records []RosterRecord, reporter *Reporter) bool {
	results := make(chan Outcome, o.opts.Workers)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for out := range results {
			n := reporter.Add(out)
			if n%o.opts.ProgressEvery == 0 || n == len(records) {
				o.emit(Progress{
					RunID:     runID,
					Phase:     PhaseReconciling,
					Total:     len(records),
					Processed: n,
					Errored:   reporter.Count(BucketErrored),
				})
			}
		}
	}()

	// In-flight records must not be torn down by cancellation; each one is
	// still bounded by the reconciler's record timeout.
	recordCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, o.opts.Workers)
	var wg sync.WaitGroup
	cancelled := false

	for _, rec := range records {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case <-ctx.Done():
			cancelled = true
		case sem <- struct{}{}:
		}
		if cancelled {
			break
		}

		wg.Add(1)
		go func(rec RosterRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- o.reconciler.Reconcile(recordCtx, rec)
		}(rec)
	}

	wg.Wait()
	close(results)
	<-collected

	if cancelled {
		o.logger.Warn("reconciliation cancelled", "run_id", runID, "scheduled", reporter.Len(), "total", len(records))
	}
	return cancelled
}

func (o *Orchestrator) emit(p Progress) {
	if o.opts.Progress != nil {
		o.opts.Progress(p)
	}
}
