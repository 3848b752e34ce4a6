package roster

import (
	"sort"
	"sync"
)

// Reporter accumulates reconciliation outcomes into audit buckets.
// It is safe for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	outcomes []Outcome
	counts   map[Bucket]int
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{counts: make(map[Bucket]int, len(Buckets))}
}

// Add records one outcome and returns the number of outcomes recorded so far.
func (r *Reporter) Add(o Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, o)
	r.counts[o.Bucket()]++
	return len(r.outcomes)
}

// Len returns the number of outcomes recorded.
func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Count returns the number of outcomes in bucket b.
func (r *Reporter) Count(b Bucket) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[b]
}

// Outcomes returns a copy of every outcome ordered by source row.
func (r *Reporter) Outcomes() []Outcome {
	r.mu.Lock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.RowNumber < out[j].Record.RowNumber
	})
	return out
}

// Bucket returns the outcomes in bucket b ordered by source row.
func (r *Reporter) Bucket(b Bucket) []Outcome {
	var result []Outcome
	for _, o := range r.Outcomes() {
		if o.Bucket() == b {
			result = append(result, o)
		}
	}
	return result
}

// Changes returns every outcome that is not maintained, ordered by source row.
func (r *Reporter) Changes() []Outcome {
	var result []Outcome
	for _, o := range r.Outcomes() {
		if o.Bucket() != BucketMaintained {
			result = append(result, o)
		}
	}
	return result
}

// Fill copies the bucket counts into s and returns it.
func (r *Reporter) Fill(s RunSummary) RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.Processed = len(r.outcomes)
	s.New = r.counts[BucketNew]
	s.Reactivated = r.counts[BucketReactivated]
	s.Deactivated = r.counts[BucketDeactivated]
	s.Maintained = r.counts[BucketMaintained]
	s.Errored = r.counts[BucketErrored]
	return s
}
