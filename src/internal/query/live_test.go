package query

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

func newTestQueries(t *testing.T, handler http.HandlerFunc) *LiveQueries {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	creds, err := types.NewCredentials("acct", "secret", "proj", types.RegionUS)
	require.NoError(t, err)
	tr := transport.New(creds, transport.WithBaseURLs(srv.URL, srv.URL))
	return New(tr)
}

func TestSegmentation_RejectsUnknownUnitWithoutNetworkCall(t *testing.T) {
	called := false
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := q.Segmentation(context.Background(), "signup", "2026-01-01", "2026-01-02", "fortnight", "")
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.QueryError, kind)
	assert.False(t, called, "unit validation must happen before any network I/O")
}

func TestSegmentation_ShapesEnvelope(t *testing.T) {
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query/segmentation", r.URL.Path)
		w.Write([]byte(`{"data":{"values":{"signup":{"2026-01-01":5}}}}`))
	})

	result, err := q.Segmentation(context.Background(), "signup", "2026-01-01", "2026-01-01", types.UnitDay, "")
	require.NoError(t, err)
	assert.EqualValues(t, 5, result.Total)
}

func TestFrequency_CallsFrequencyEndpointNotSegmentation(t *testing.T) {
	var gotPath string
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"2026-01-01":[10,5,2]}`))
	})

	result, err := q.Frequency(context.Background(), "signup", "2026-01-01", "2026-01-07", types.OuterWeek, types.GranularityDay)
	require.NoError(t, err)
	assert.Equal(t, "/query/retention/properties", gotPath)
	assert.NotEqual(t, "/query/segmentation", gotPath)
	assert.Equal(t, []int64{10, 5, 2}, result.Data["2026-01-01"])
}

func TestActivityFeed_UsesDedicatedEndpointWithLimitParam(t *testing.T) {
	var gotPath, gotLimit string
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`{"events":[{"event":"signup","properties":{"time":1767225600}}]}`))
	})

	result, err := q.ActivityFeed(context.Background(), []string{"u1"}, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "/query/stream/query", gotPath)
	assert.Equal(t, "1000", gotLimit)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "signup", result.Events[0].EventName)
}

func TestListProperties_WithoutEventFetchesProfileProperties(t *testing.T) {
	var gotPath string
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode([]string{"plan", "referrer"})
	})

	props, err := q.ListProperties(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "/query/engage/properties", gotPath)
	assert.ElementsMatch(t, []string{"plan", "referrer"}, props)
}

func TestListProperties_WithEventFetchesEventProperties(t *testing.T) {
	var gotPath string
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode([]string{"plan"})
	})

	_, err := q.ListProperties(context.Background(), "signup")
	require.NoError(t, err)
	assert.Equal(t, "/query/events/properties", gotPath)
}

func TestListBookmarks_RejectsOversizedResponse(t *testing.T) {
	huge := strings.Repeat("x", (1<<20)+1)
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[],"padding":"` + huge + `"}`))
	})

	_, err := q.ListBookmarks(context.Background(), 0, 50, nil)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.ProtocolError, kind)
}

func TestListBookmarks_SupportsPagingAndProjection(t *testing.T) {
	var gotPage, gotFields string
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		gotFields = r.URL.Query().Get("fields")
		w.Write([]byte(`{"results":[{"id":1,"name":"Weekly Active","report_type":"insights"}]}`))
	})

	results, err := q.ListBookmarks(context.Background(), 2, 10, []string{"id", "name"})
	require.NoError(t, err)
	assert.Equal(t, "2", gotPage)
	assert.Contains(t, gotFields, "id")
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestFunnel_SingleStepHasConversionOne(t *testing.T) {
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"Landing","steps":[{"event":"view","count":100}]}`))
	})

	result, err := q.Funnel(context.Background(), 42, "2026-01-01", "2026-01-07")
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.OverallConversionRate)
}

func TestRetention_RejectsUnknownIntervalBeforeNetworkCall(t *testing.T) {
	called := false
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := q.Retention(context.Background(), "signup", "", "2026-01-01", "2026-01-31", "fortnight", 4)
	require.Error(t, err)
	assert.False(t, called)
}

func TestRunJQL_PassesThroughRawResult(t *testing.T) {
	var gotBody map[string]interface{}
	q := newTestQueries(t, func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		_ = json.Unmarshal(buf.Bytes(), &gotBody)
		w.Write([]byte(`[{"distinct_id":"u1","count":3}]`))
	})

	raw, err := q.RunJQL(context.Background(), "function main(){return [];}", nil)
	require.NoError(t, err)
	assert.Equal(t, "function main(){return [];}", gotBody["script"])
	assert.JSONEq(t, `[{"distinct_id":"u1","count":3}]`, string(raw))
}
