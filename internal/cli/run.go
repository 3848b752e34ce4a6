package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rostersync/internal/logging"
	"github.com/JonMunkholm/rostersync/internal/roster"
	"github.com/JonMunkholm/rostersync/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation",
	Long: `Reconcile one roster snapshot against the access-control store.

The snapshot is ROSTER_INPUT_PATH unless --file is given. Artifacts are
written to ROSTER_OUTPUT_DIR. Ctrl-C stops scheduling new records, lets
in-flight ones finish and still writes the artifacts.

Exit codes:
  0    completed without record errors
  1    configuration error or aborted run
  2    completed with record errors
  3    skipped, another run holds the lock
  130  cancelled

Examples:
  rostersync run
  rostersync run --file ./data/roster_marzo.csv --dry-run
  rostersync run --workers 4`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runFile    string
	runDryRun  bool
	runWorkers int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Roster snapshot to reconcile (default: ROSTER_INPUT_PATH)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Classify every record without persisting changes")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Records reconciled in parallel (default: ROSTER_WORKERS)")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runWorkers >= cfg.Database.MaxConns {
		return &ExitError{Code: ExitFatal, Err: fmt.Errorf("--workers (%d) must be < DB_MAX_CONNS (%d)", runWorkers, cfg.Database.MaxConns)}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logging.FromContext(ctx)

	store, closeStore := openStore(ctx, logger)
	defer closeStore()

	result, err := runner.New(store, cfg.Roster).Run(ctx, runner.RunOptions{
		InputPath: runFile,
		DryRun:    runDryRun,
		Workers:   runWorkers,
	})
	printResult(cmd.OutOrStdout(), result)
	return exitFor(result, err)
}

// exitFor maps a run outcome to an exit code.
func exitFor(result *roster.RunResult, err error) error {
	switch {
	case runner.IsSkipped(err):
		return &ExitError{Code: ExitSkipped, Err: err}
	case err != nil:
		return &ExitError{Code: ExitFatal, Err: err}
	case result.Cancelled:
		return &ExitError{Code: ExitCancelled, Err: errors.New("run cancelled, artifacts cover processed records only")}
	case result.Summary.Errored > 0:
		return &ExitError{Code: ExitRecordErrors}
	}
	return nil
}

func printResult(w io.Writer, result *roster.RunResult) {
	if result == nil {
		return
	}
	s := result.Summary
	mode := ""
	if result.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Run %s%s: %d rows, %d processed in %s\n", s.RunID, mode, s.TotalRows, s.Processed, s.Duration.Round(time.Millisecond))
	for _, b := range roster.Buckets {
		fmt.Fprintf(w, "  %-12s %d\n", b, s.Count(b))
	}
	if s.Dropped > 0 || s.Duplicates > 0 {
		fmt.Fprintf(w, "  dropped %d, duplicates %d\n", s.Dropped, s.Duplicates)
	}
	for _, a := range result.Artifacts {
		fmt.Fprintf(w, "  %s: %s\n", a.Kind, a.Location)
	}
	for _, e := range result.ArtifactErrors {
		fmt.Fprintf(w, "  warning: %s\n", e)
	}
}
