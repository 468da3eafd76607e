package types

import "time"

// FetchResult is returned by the sequential fetcher.
type FetchResult struct {
	Table     string
	RowCount  int64
	Duration  time.Duration
	FetchedAt time.Time
}

// ParallelFetchProgress is emitted once per slice, after the writer has
// persisted the batch (success) or after the fetcher has given up on the
// slice (failure). success implies Error == "".
type ParallelFetchProgress struct {
	SliceKey   string
	SliceTotal int
	Rows       int64
	Success    bool
	Error      string
}

// ParallelFetchResult aggregates a parallel fetch job. Invariants:
// SuccessfulSlices + FailedSlices == total slices scheduled, and
// len(FailedSliceKeys) == FailedSlices.
type ParallelFetchResult struct {
	Table            string
	TotalRows        int64
	SuccessfulSlices int
	FailedSlices     int
	FailedSliceKeys  []string
	Duration         time.Duration
	FetchedAt        time.Time
}

// HasFailures reports whether any slice failed.
func (r ParallelFetchResult) HasFailures() bool { return r.FailedSlices > 0 }

// ProgressCallback is invoked once per completed slice, in completion order
// (not shard order).
type ProgressCallback func(ParallelFetchProgress)
