package batch

import (
	"fmt"
	"slices"
	"time"
)

// Counts summarises a BatchResult.
type Counts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// BatchResult is the finalized, index-ordered set of outcomes.
type BatchResult struct {
	ID       string
	Elapsed  time.Duration
	outcomes []JobOutcome
}

// All returns every outcome sorted by index.
func (r *BatchResult) All() []JobOutcome {
	return slices.Clone(r.outcomes)
}

// Succeeded returns the successful outcomes in index order.
func (r *BatchResult) Succeeded() []JobOutcome {
	return r.filter(StatusSuccess)
}

// Failed returns the failed outcomes in index order.
func (r *BatchResult) Failed() []JobOutcome {
	return r.filter(StatusFailure)
}

// Total returns the number of outcomes.
func (r *BatchResult) Total() int {
	return len(r.outcomes)
}

// Counts returns succeeded, failed and total counts.
func (r *BatchResult) Counts() Counts {
	c := Counts{Total: len(r.outcomes)}
	for _, o := range r.outcomes {
		if o.Succeeded() {
			c.Succeeded++
		} else {
			c.Failed++
		}
	}
	return c
}

// Summary returns the one-line success summary, e.g. "Successful: 2/3".
func (r *BatchResult) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("Successful: %d/%d", c.Succeeded, c.Total)
}

func (r *BatchResult) filter(status Status) []JobOutcome {
	var out []JobOutcome
	for _, o := range r.outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Aggregator collects outcomes in completion order and finalizes them into a
// BatchResult in index order. It is owned by a single goroutine.
type Aggregator struct {
	total    int
	outcomes []JobOutcome
	seen     []bool
}

// NewAggregator creates an Aggregator expecting total outcomes.
func NewAggregator(total int) *Aggregator {
	return &Aggregator{
		total:    total,
		outcomes: make([]JobOutcome, 0, total),
		seen:     make([]bool, total),
	}
}

// Add records one outcome. Each index may be added exactly once.
func (a *Aggregator) Add(o JobOutcome) error {
	if o.Index < 0 || o.Index >= a.total {
		return fmt.Errorf("outcome index %d out of range [0,%d)", o.Index, a.total)
	}
	if a.seen[o.Index] {
		return fmt.Errorf("duplicate outcome for index %d", o.Index)
	}
	a.seen[o.Index] = true
	a.outcomes = append(a.outcomes, o)
	return nil
}

// Len returns the number of outcomes recorded so far.
func (a *Aggregator) Len() int {
	return len(a.outcomes)
}

// Finalize sorts the outcomes by index. It fails if any index is missing.
func (a *Aggregator) Finalize(id string, elapsed time.Duration) (*BatchResult, error) {
	if len(a.outcomes) != a.total {
		return nil, fmt.Errorf("batch incomplete: %d of %d outcomes", len(a.outcomes), a.total)
	}
	sorted := slices.Clone(a.outcomes)
	slices.SortFunc(sorted, func(x, y JobOutcome) int {
		return x.Index - y.Index
	})
	return &BatchResult{ID: id, Elapsed: elapsed, outcomes: sorted}, nil
}
