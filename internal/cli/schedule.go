package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rostersync/internal/logging"
	"github.com/JonMunkholm/rostersync/internal/runner"
	"github.com/JonMunkholm/rostersync/internal/web"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Reconcile periodically and serve the ops endpoints",
	Long: `Run a reconciliation at startup and then every SCHEDULE_INTERVAL.

The ops server on OPS_HOST:OPS_PORT exposes:
  GET  /healthz      liveness
  GET  /readyz       database reachability
  GET  /metrics      Prometheus metrics
  GET  /runs/latest  status of the current or last run
  POST /runs         queue a run now (Bearer OPS_TRIGGER_TOKEN)

SIGINT/SIGTERM cancels the run in progress (its artifacts are still
written) and stops the server within OPS_SHUTDOWN_TIMEOUT.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

var scheduleDryRun bool

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "Classify without persisting changes on every run")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	store, closeStore := openStore(ctx, logger)
	defer closeStore()

	r := runner.New(store, cfg.Roster)
	scheduler := runner.NewScheduler(r, cfg.Schedule.Interval, runner.RunOptions{DryRun: scheduleDryRun})
	server := web.NewServer(web.Deps{
		Store:        store,
		Runs:         r,
		Trigger:      scheduler,
		TriggerToken: cfg.Schedule.TriggerToken,
	})

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	jobsDone := make(chan struct{})
	go func() {
		defer close(jobsDone)
		scheduler.Start(jobCtx)
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Schedule.ShutdownTimeout)
		defer cancel()

		select {
		case <-jobsDone:
			logger.Info("scheduler stopped")
		case <-shutdownCtx.Done():
			logger.Warn("run did not finish before shutdown timeout")
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Schedule.Addr(), cfg.Schedule.ReadTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancelJobs()
		return &ExitError{Code: ExitFatal, Err: err}
	}
	logger.Info("server stopped")
	return nil
}
