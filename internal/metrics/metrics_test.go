package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/rostersync/internal/roster"
)

func TestResult(t *testing.T) {
	tests := []struct {
		name string
		res  *roster.RunResult
		err  error
		want string
	}{
		{"clean", &roster.RunResult{}, nil, ResultSuccess},
		{"record errors", &roster.RunResult{Summary: roster.RunSummary{Errored: 2}}, nil, ResultPartial},
		{"cancelled", &roster.RunResult{Cancelled: true, Summary: roster.RunSummary{Errored: 1}}, nil, ResultCancelled},
		{"fatal", &roster.RunResult{}, errors.New("boom"), ResultFailed},
		{"no result", nil, nil, ResultFailed},
		{"locked", nil, fmt.Errorf("lock: %w", roster.ErrRunInProgress), ResultSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Result(tt.res, tt.err); got != tt.want {
				t.Errorf("Result() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestObserveRun(t *testing.T) {
	successBefore := testutil.ToFloat64(RunsTotal.WithLabelValues(ResultSuccess))
	newBefore := testutil.ToFloat64(RecordsTotal.WithLabelValues(string(roster.BucketNew)))
	dupBefore := testutil.ToFloat64(DroppedRowsTotal.WithLabelValues("duplicate"))

	ObserveRun(&roster.RunResult{Summary: roster.RunSummary{
		Duration:   2 * time.Second,
		New:        3,
		Maintained: 5,
		Duplicates: 1,
	}}, nil)

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues(ResultSuccess)) - successBefore; got != 1 {
		t.Errorf("success runs delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RecordsTotal.WithLabelValues(string(roster.BucketNew))) - newBefore; got != 3 {
		t.Errorf("new records delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(DroppedRowsTotal.WithLabelValues("duplicate")) - dupBefore; got != 1 {
		t.Errorf("duplicate rows delta = %v, want 1", got)
	}
	if testutil.ToFloat64(LastSuccessTimestamp) == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestObserveRun_SkippedDoesNotTouchTimestamps(t *testing.T) {
	LastRunTimestamp.Set(0)
	skippedBefore := testutil.ToFloat64(RunsTotal.WithLabelValues(ResultSkipped))

	ObserveRun(nil, roster.ErrRunInProgress)

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues(ResultSkipped)) - skippedBefore; got != 1 {
		t.Errorf("skipped runs delta = %v, want 1", got)
	}
	if testutil.ToFloat64(LastRunTimestamp) != 0 {
		t.Error("skipped run should not update the last run timestamp")
	}
}
