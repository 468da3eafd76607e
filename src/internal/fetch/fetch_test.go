package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discohead/mixpanel-data/src/internal/storage"
	"github.com/discohead/mixpanel-data/src/internal/streaming"
	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

func newFetchTransport(t *testing.T, srv *httptest.Server) *transport.Transport {
	t.Helper()
	creds, err := types.NewCredentials("acct", "secret", "proj", types.RegionUS)
	require.NoError(t, err)
	return transport.New(creds, transport.WithBaseURLs(srv.URL, srv.URL))
}

func newFetchStore(t *testing.T) *storage.StorageEngine {
	t.Helper()
	s, err := storage.Open("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFetchEventsSequential_WritesAllRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"event":"signup","properties":{"distinct_id":"u1","time":1767225600,"$insert_id":"i1"}}` + "\n"))
		w.Write([]byte(`{"event":"signup","properties":{"distinct_id":"u2","time":1767225600,"$insert_id":"i2"}}` + "\n"))
	}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)
	ctx := context.Background()

	stream, err := streaming.StreamEvents(ctx, tr, "2026-01-01", "2026-01-01", streaming.EventFilter{}, false)
	require.NoError(t, err)
	defer stream.Close()

	result, err := FetchEventsSequential(ctx, store, stream, "events_a", false, DefaultBatchSize, zerolog.Nop())
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.RowCount)

	meta, err := store.TableMetadata(ctx, "events_a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, meta.RowCount)
}

func TestFetchEventsSequential_FlushesPartialBatchOnSizeBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, `{"event":"signup","properties":{"distinct_id":"u%d","time":1767225600,"$insert_id":"i%d"}}`+"\n", i, i)
		}
	}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)
	ctx := context.Background()

	stream, err := streaming.StreamEvents(ctx, tr, "2026-01-01", "2026-01-01", streaming.EventFilter{}, false)
	require.NoError(t, err)
	defer stream.Close()

	result, err := FetchEventsSequential(ctx, store, stream, "events_a", false, 2, zerolog.Nop())
	require.NoError(t, err)
	assert.EqualValues(t, 5, result.RowCount)
}

func TestFetchProfilesSequential_WritesAllRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total":      2,
			"page_size":  2,
			"session_id": "sess-1",
			"page":       0,
			"results": []map[string]interface{}{
				{"$distinct_id": "u1", "$properties": map[string]interface{}{"plan": "pro"}},
				{"$distinct_id": "u2", "$properties": map[string]interface{}{"plan": "free"}},
			},
		})
	}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)
	ctx := context.Background()

	stream, err := streaming.StreamProfiles(ctx, tr, "", false)
	require.NoError(t, err)
	defer stream.Close()

	result, err := FetchProfilesSequential(ctx, store, stream, "profiles_a", false, DefaultBatchSize, zerolog.Nop())
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.RowCount)
}

func TestParallelFetchEvents_ShardsByDayAndAggregatesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day := r.URL.Query().Get("from_date")
		fmt.Fprintf(w, `{"event":"signup","properties":{"distinct_id":"u-%s","time":1767225600,"$insert_id":"i-%s"}}`+"\n", day, day)
	}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)
	ctx := context.Background()

	var progressCount int
	result, err := ParallelFetchEvents(ctx, store, tr, "events_a", "2026-01-01", "2026-01-03", streaming.EventFilter{}, false, 2,
		func(types.ParallelFetchProgress) { progressCount++ }, zerolog.Nop())
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.TotalRows)
	assert.Equal(t, 3, result.SuccessfulSlices)
	assert.Equal(t, 0, result.FailedSlices)
	assert.Equal(t, 3, progressCount)

	meta, err := store.TableMetadata(ctx, "events_a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, meta.RowCount)
}

func TestParallelFetchEvents_RecordsSliceFailureWithoutAbortingOthers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day := r.URL.Query().Get("from_date")
		if day == "2026-01-02" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad day"}`))
			return
		}
		fmt.Fprintf(w, `{"event":"signup","properties":{"distinct_id":"u-%s","time":1767225600,"$insert_id":"i-%s"}}`+"\n", day, day)
	}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)
	ctx := context.Background()

	result, err := ParallelFetchEvents(ctx, store, tr, "events_a", "2026-01-01", "2026-01-03", streaming.EventFilter{}, false, 3, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessfulSlices)
	assert.Equal(t, 1, result.FailedSlices)
	assert.Equal(t, []string{"2026-01-02"}, result.FailedSliceKeys)
	assert.EqualValues(t, 2, result.TotalRows)
}

func TestParallelFetchProfiles_BootstrapThenPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pageNum, _ := strconv.Atoi(page)
		results := []map[string]interface{}{
			{"$distinct_id": "u-" + page, "$properties": map[string]interface{}{"plan": "pro"}},
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"total":      3,
			"page_size":  1,
			"session_id": "sess-1",
			"page":       pageNum,
			"results":    results,
		})
	}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)
	ctx := context.Background()

	result, err := ParallelFetchProfiles(ctx, store, tr, "profiles_a", "", false, 2, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.TotalRows)
	assert.Equal(t, 3, result.SuccessfulSlices)

	meta, err := store.TableMetadata(ctx, "profiles_a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, meta.RowCount)
}

func TestParallelFetchProfiles_AuthFailureOnBootstrapCreatesNoTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)
	ctx := context.Background()

	_, err := ParallelFetchProfiles(ctx, store, tr, "profiles_a", "", false, 2, nil, zerolog.Nop())
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.AuthenticationFailure, kind)

	_, err = store.TableMetadata(ctx, "profiles_a")
	assert.Error(t, err, "no table should be created when the bootstrap page fails authentication")
}

func TestParallelFetchEvents_RejectsInvertedRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	tr := newFetchTransport(t, srv)
	store := newFetchStore(t)

	_, err := ParallelFetchEvents(context.Background(), store, tr, "events_a", "2026-01-03", "2026-01-01", streaming.EventFilter{}, false, 2, nil, zerolog.Nop())
	require.Error(t, err)
}
