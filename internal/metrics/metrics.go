// Package metrics holds the Prometheus collectors for reconciliation runs.
// They are registered on the default registry and served by the ops server.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JonMunkholm/rostersync/internal/roster"
)

// Run results used as the "result" label.
const (
	ResultSuccess   = "success"
	ResultPartial   = "partial" // completed with record errors
	ResultCancelled = "cancelled"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped" // another run held the lock
)

var (
	// RunsTotal counts runs by result.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rostersync_runs_total",
		Help: "Reconciliation runs by result.",
	}, []string{"result"})

	// RecordsTotal counts reconciled records by audit bucket.
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rostersync_records_total",
		Help: "Reconciled roster records by audit bucket.",
	}, []string{"bucket"})

	// DroppedRowsTotal counts rows dropped during normalization or deduplication.
	DroppedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rostersync_dropped_rows_total",
		Help: "Roster rows that never reached reconciliation, by reason.",
	}, []string{"reason"})

	// RunDuration observes wall time per run.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rostersync_run_duration_seconds",
		Help:    "Duration of reconciliation runs in seconds.",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// LastRunTimestamp is the unix time the last run finished.
	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rostersync_last_run_timestamp_seconds",
		Help: "Unix time the last reconciliation run finished.",
	})

	// LastSuccessTimestamp is the unix time of the last run without a fatal error.
	LastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rostersync_last_success_timestamp_seconds",
		Help: "Unix time the last reconciliation run completed without aborting.",
	})

	// RoleCacheLookups counts role id lookups by cache result.
	RoleCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rostersync_role_cache_lookups_total",
		Help: "Role id lookups by cache result (hit, miss).",
	}, []string{"result"})
)

// Result classifies a finished run for the "result" label.
func Result(res *roster.RunResult, err error) string {
	switch {
	case errors.Is(err, roster.ErrRunInProgress):
		return ResultSkipped
	case err != nil:
		return ResultFailed
	case res == nil:
		return ResultFailed
	case res.Cancelled:
		return ResultCancelled
	case res.Summary.Errored > 0:
		return ResultPartial
	default:
		return ResultSuccess
	}
}

// ObserveRun records a finished run. res may be nil when the run never started.
func ObserveRun(res *roster.RunResult, err error) {
	result := Result(res, err)
	RunsTotal.WithLabelValues(result).Inc()
	if result == ResultSkipped {
		return
	}

	now := float64(time.Now().Unix())
	LastRunTimestamp.Set(now)
	if err == nil {
		LastSuccessTimestamp.Set(now)
	}
	if res == nil {
		return
	}

	s := res.Summary
	RunDuration.Observe(s.Duration.Seconds())
	for _, b := range roster.Buckets {
		if n := s.Count(b); n > 0 {
			RecordsTotal.WithLabelValues(string(b)).Add(float64(n))
		}
	}
	if s.Dropped > 0 {
		DroppedRowsTotal.WithLabelValues("invalid").Add(float64(s.Dropped))
	}
	if s.Duplicates > 0 {
		DroppedRowsTotal.WithLabelValues("duplicate").Add(float64(s.Duplicates))
	}
}

var (
	// HTTPRequestsTotal counts ops server requests.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rostersync_http_requests_total",
		Help: "Ops server HTTP requests.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes ops server request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rostersync_http_request_duration_seconds",
		Help:    "Ops server HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
