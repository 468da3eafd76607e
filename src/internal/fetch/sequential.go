// Package fetch drives StreamingExport and the Provider's engage endpoint
// into the StorageEngine, both one slice at a time (SequentialFetcher) and
// sharded across a worker pool behind a single writer (ParallelFetcher). It
// is adapted from the teacher's collector batch-accumulation loop
// (src/internal/collector/collector.go), which drains one channel into
// fixed-size batches on a ticker; here slices replace the ticker and the
// accumulation is bounded by record count rather than time.
package fetch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/discohead/mixpanel-data/src/internal/streaming"
	"github.com/discohead/mixpanel-data/src/internal/storage"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// DefaultBatchSize is the number of records accumulated before a batch is
// handed to the storage engine.
const DefaultBatchSize = 1000

// sequentialDrain pulls records off next until exhaustion, accumulating
// batches of size batchSize and flushing each full batch (and the final
// partial one) via appendBatch. The partial table is left intact on error:
// appendBatch is only ever called with complete batches that have not yet
// been written, so whatever was flushed before the failure remains on disk.
func sequentialDrain[T any](next func() (T, bool, error), batchSize int, appendBatch func([]T) error) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var total int64
	batch := make([]T, 0, batchSize)
	for {
		rec, ok, err := next()
		if err != nil {
			return total, err
		}
		if !ok {
			break
		}
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := appendBatch(batch); err != nil {
				return total, err
			}
			total += int64(len(batch))
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := appendBatch(batch); err != nil {
			return total, err
		}
		total += int64(len(batch))
	}
	return total, nil
}

// FetchEventsSequential drains stream into table, creating it first
// (honoring replace), and writes in batches of batchSize.
func FetchEventsSequential(ctx context.Context, store *storage.StorageEngine, stream *streaming.EventStream, table string, replace bool, batchSize int, logger zerolog.Logger) (types.FetchResult, error) {
	start := time.Now()
	if err := store.CreateTable(ctx, table, types.TableKindEvents, replace); err != nil {
		return types.FetchResult{}, err
	}

	rows, err := sequentialDrain(stream.NextNormalized, batchSize, func(batch []types.EventRecord) error {
		return store.AppendEvents(ctx, table, batch)
	})
	if err != nil {
		logger.Warn().Err(err).Str("table", table).Msg("sequential event fetch stopped early")
		return types.FetchResult{Table: table, RowCount: rows, Duration: time.Since(start), FetchedAt: start}, err
	}

	return types.FetchResult{Table: table, RowCount: rows, Duration: time.Since(start), FetchedAt: start}, nil
}

// FetchProfilesSequential streams every profile into table, creating it
// first (honoring replace), and writes in batches of batchSize.
func FetchProfilesSequential(ctx context.Context, store *storage.StorageEngine, stream *streaming.ProfileStream, table string, replace bool, batchSize int, logger zerolog.Logger) (types.FetchResult, error) {
	start := time.Now()
	if err := store.CreateTable(ctx, table, types.TableKindProfiles, replace); err != nil {
		return types.FetchResult{}, err
	}

	rows, err := sequentialDrain(stream.NextNormalized, batchSize, func(batch []types.ProfileRecord) error {
		return store.AppendProfiles(ctx, table, batch)
	})
	if err != nil {
		logger.Warn().Err(err).Str("table", table).Msg("sequential profile fetch stopped early")
		return types.FetchResult{Table: table, RowCount: rows, Duration: time.Since(start), FetchedAt: start}, err
	}

	return types.FetchResult{Table: table, RowCount: rows, Duration: time.Since(start), FetchedAt: start}, nil
}
