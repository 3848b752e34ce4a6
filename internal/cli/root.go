// Package cli implements the rostersync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rostersync/internal/config"
	"github.com/JonMunkholm/rostersync/internal/logging"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFatal        = 1 // configuration error or aborted run
	ExitRecordErrors = 2 // run completed, some records errored
	ExitSkipped      = 3 // another run held the lock
	ExitCancelled    = 130
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// cfg is loaded once by the root command before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rostersync",
	Short: "Reconcile the enrollment roster against the access-control population",
	Long: `rostersync reads a roster export (XLSX or CSV), reconciles every person
against the access-control store and writes a run log, a change report and
an updated roster workbook.

Configuration comes from the environment (and .env). Run 'rostersync run'
for a single reconciliation or 'rostersync schedule' to keep running.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return &ExitError{Code: ExitFatal, Err: fmt.Errorf("load configuration: %w", err)}
		}
		cfg = loaded
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format, nil)

		ctx := logging.ContextWith(cmd.Context(), "command", cmd.Name())
		cmd.SetContext(ctx)
		logging.FromContext(ctx).Debug("configuration loaded", "config", cfg.String())
		return nil
	},
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitFatal
}
