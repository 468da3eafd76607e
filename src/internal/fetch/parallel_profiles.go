package fetch

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/discohead/mixpanel-data/src/internal/storage"
	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const (
	defaultProfileWorkers = 5
	maxProfileWorkers     = 5
)

// ParallelFetchProfiles bootstraps the engage page sequence with a page-0
// request to learn total, page_size, and session_id, then shards pages
// [1 .. num_pages-1] across a worker pool; every subsequent page reuses the
// bootstrap session_id for result consistency.
func ParallelFetchProfiles(ctx context.Context, store *storage.StorageEngine, tr *transport.Transport, table, where string, replace bool, workers int, onProgress types.ProgressCallback, logger zerolog.Logger) (types.ParallelFetchResult, error) {
	start := time.Now()
	workers = transport.ClampWorkers(workers, maxProfileWorkers, defaultProfileWorkers)

	filters := url.Values{}
	if where != "" {
		filters.Set("where", where)
	}

	// Bootstrap page 0 before creating any table: an auth failure here must
	// fail fast with no table left on disk and no workers scheduled.
	bootstrap, err := tr.QueryEngagePage(ctx, 0, "", filters)
	if err != nil {
		return types.ParallelFetchResult{}, err
	}

	if err := store.CreateTable(ctx, table, types.TableKindProfiles, replace); err != nil {
		return types.ParallelFetchResult{}, err
	}

	bootstrapRows := normalizeProfiles(bootstrap.Results)
	bootstrapSuccess := 1
	if len(bootstrapRows) > 0 {
		if err := store.AppendProfiles(ctx, table, bootstrapRows); err != nil {
			return types.ParallelFetchResult{}, err
		}
	}
	if onProgress != nil {
		onProgress(types.ParallelFetchProgress{SliceKey: "0", Rows: int64(len(bootstrapRows)), Success: true})
	}

	numPages := 1
	if bootstrap.PageSize > 0 {
		numPages = int(math.Ceil(float64(bootstrap.Total) / float64(bootstrap.PageSize)))
		if numPages < 1 {
			numPages = 1
		}
	}

	var pageKeys []string
	for p := 1; p < numPages; p++ {
		pageKeys = append(pageKeys, strconv.Itoa(p))
	}

	fetchSlice := func(ctx context.Context, key string) ([]types.ProfileRecord, error) {
		page, err := strconv.Atoi(key)
		if err != nil {
			return nil, err
		}
		resp, err := tr.QueryEngagePage(ctx, page, bootstrap.SessionID, filters)
		if err != nil {
			return nil, err
		}
		return normalizeProfiles(resp.Results), nil
	}

	appendBatch := func(ctx context.Context, rows []types.ProfileRecord) error {
		return store.AppendProfiles(ctx, table, rows)
	}

	rest, err := runParallelFetch(ctx, table, pageKeys, workers, fetchSlice, appendBatch, onProgress, logger)
	if err != nil {
		return rest, err
	}

	return types.ParallelFetchResult{
		Table:            table,
		TotalRows:        int64(len(bootstrapRows)) + rest.TotalRows,
		SuccessfulSlices: bootstrapSuccess + rest.SuccessfulSlices,
		FailedSlices:     rest.FailedSlices,
		FailedSliceKeys:  rest.FailedSliceKeys,
		Duration:         time.Since(start),
		FetchedAt:        start,
	}, nil
}

func normalizeProfiles(raw []types.RawProfile) []types.ProfileRecord {
	rows := make([]types.ProfileRecord, len(raw))
	for i, p := range raw {
		rows[i] = types.NormalizeProfile(p)
	}
	return rows
}
