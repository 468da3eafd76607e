package fetch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// hourlyBudgetWarningThreshold mirrors transport.Budgets' 80%-of-60 ceiling;
// duplicated here as a plain constant so fetch does not need a Transport
// reference just to decide whether to log a budget warning.
const hourlyBudgetWarningThreshold = 48

// sliceOutcome is what a worker hands to the single writer: either a batch
// of rows ready to persist, or a failure to record as-is.
type sliceOutcome[T any] struct {
	key     string
	rows    []T
	success bool
	errMsg  string
}

// runParallelFetch is the shared sharded producer/consumer pipeline behind
// ParallelFetchEvents and ParallelFetchProfiles. Up to workers goroutines
// call fetchSlice concurrently, bounded by a semaphore; this goroutine is
// the single writer, calling appendBatch and emitting progress for every
// slice exactly once. A slice failure is recorded and does not cancel
// sibling workers; only ctx cancellation stops scheduling new slices, and
// slices that never started are reported as failed.
func runParallelFetch[T any](
	ctx context.Context,
	table string,
	sliceKeys []string,
	workers int,
	fetchSlice func(ctx context.Context, key string) ([]T, error),
	appendBatch func(ctx context.Context, rows []T) error,
	onProgress types.ProgressCallback,
	logger zerolog.Logger,
) (types.ParallelFetchResult, error) {
	start := time.Now()
	total := len(sliceKeys)

	if total > hourlyBudgetWarningThreshold {
		logger.Warn().
			Str("table", table).
			Int("expected_requests", total).
			Msg("fetch is expected to exceed 80% of the hourly request budget")
	}

	sem := semaphore.NewWeighted(int64(workers))
	var g errgroup.Group
	results := make(chan sliceOutcome[T], 2*workers)

	// Scheduling runs in its own goroutine so the writer loop below drains
	// results while slices are still being started. notStarted is written
	// before results is closed and read only after the writer loop ends.
	var notStarted []string
	go func() {
		started := 0
		for _, key := range sliceKeys {
			key := key
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
			started++
			g.Go(func() error {
				defer sem.Release(1)
				rows, err := fetchSlice(ctx, key)
				if err != nil {
					results <- sliceOutcome[T]{key: key, errMsg: err.Error()}
					return nil
				}
				results <- sliceOutcome[T]{key: key, rows: rows, success: true}
				return nil
			})
		}
		notStarted = sliceKeys[started:]
		g.Wait()
		close(results)
	}()

	var (
		totalRows        int64
		successfulSlices int
		failedSlices     int
		failedKeys       []string
	)

	for outcome := range results {
		if !outcome.success {
			failedSlices++
			failedKeys = append(failedKeys, outcome.key)
			logger.Warn().Str("table", table).Str("slice", outcome.key).Str("error", outcome.errMsg).Msg("slice fetch failed")
			if onProgress != nil {
				onProgress(types.ParallelFetchProgress{SliceKey: outcome.key, SliceTotal: total, Success: false, Error: outcome.errMsg})
			}
			continue
		}

		if len(outcome.rows) > 0 {
			if err := appendBatch(ctx, outcome.rows); err != nil {
				failedSlices++
				failedKeys = append(failedKeys, outcome.key)
				logger.Warn().Str("table", table).Str("slice", outcome.key).Err(err).Msg("slice write failed")
				if onProgress != nil {
					onProgress(types.ParallelFetchProgress{SliceKey: outcome.key, SliceTotal: total, Success: false, Error: err.Error()})
				}
				continue
			}
		}

		successfulSlices++
		totalRows += int64(len(outcome.rows))
		if onProgress != nil {
			onProgress(types.ParallelFetchProgress{SliceKey: outcome.key, SliceTotal: total, Rows: int64(len(outcome.rows)), Success: true})
		}
	}

	for _, key := range notStarted {
		failedSlices++
		failedKeys = append(failedKeys, key)
		if onProgress != nil {
			onProgress(types.ParallelFetchProgress{SliceKey: key, SliceTotal: total, Success: false, Error: "cancelled before starting"})
		}
	}

	return types.ParallelFetchResult{
		Table:            table,
		TotalRows:        totalRows,
		SuccessfulSlices: successfulSlices,
		FailedSlices:     failedSlices,
		FailedSliceKeys:  failedKeys,
		Duration:         time.Since(start),
		FetchedAt:        start,
	}, nil
}
