package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/discohead/mixpanel-data/src/internal/storage"
	"github.com/discohead/mixpanel-data/src/internal/streaming"
	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const (
	dateLayout          = "2006-01-02"
	defaultEventWorkers = 5
	maxEventWorkers     = 10
)

// ParallelFetchEvents shards [from, to] into one slice per calendar day and
// fetches each day's events concurrently, writing through a single writer
// into table.
func ParallelFetchEvents(ctx context.Context, store *storage.StorageEngine, tr *transport.Transport, table, from, to string, filter streaming.EventFilter, replace bool, workers int, onProgress types.ProgressCallback, logger zerolog.Logger) (types.ParallelFetchResult, error) {
	fromDate, err := time.Parse(dateLayout, from)
	if err != nil {
		return types.ParallelFetchResult{}, fmt.Errorf("parsing from date: %w", err)
	}
	toDate, err := time.Parse(dateLayout, to)
	if err != nil {
		return types.ParallelFetchResult{}, fmt.Errorf("parsing to date: %w", err)
	}
	if toDate.Before(fromDate) {
		return types.ParallelFetchResult{}, fmt.Errorf("to date %s precedes from date %s", to, from)
	}

	workers = transport.ClampWorkers(workers, maxEventWorkers, defaultEventWorkers)

	if err := store.CreateTable(ctx, table, types.TableKindEvents, replace); err != nil {
		return types.ParallelFetchResult{}, err
	}

	var days []string
	for d := fromDate; !d.After(toDate); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dateLayout))
	}

	fetchSlice := func(ctx context.Context, day string) ([]types.EventRecord, error) {
		stream, err := streaming.StreamEvents(ctx, tr, day, day, filter, false)
		if err != nil {
			return nil, err
		}
		defer stream.Close()
		return drainEventStream(stream)
	}

	appendBatch := func(ctx context.Context, rows []types.EventRecord) error {
		return store.AppendEvents(ctx, table, rows)
	}

	return runParallelFetch(ctx, table, days, workers, fetchSlice, appendBatch, onProgress, logger)
}

func drainEventStream(stream *streaming.EventStream) ([]types.EventRecord, error) {
	var rows []types.EventRecord
	for {
		rec, ok, err := stream.NextNormalized()
		if err != nil {
			return rows, err
		}
		if !ok {
			break
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
