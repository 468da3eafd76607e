package streaming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

func newStreamingTransport(t *testing.T, srv *httptest.Server) *transport.Transport {
	t.Helper()
	creds, err := types.NewCredentials("acct", "secret", "proj", types.RegionUS)
	require.NoError(t, err)
	tr := transport.New(creds, transport.WithBaseURLs(srv.URL, srv.URL))
	return tr
}

func TestStreamEvents_NormalizesDistinctIDTimeInsertID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"event":"signup","properties":{"distinct_id":"u1","time":1767225600,"$insert_id":"ins-1","plan":"pro"}}` + "\n"))
	}))
	defer srv.Close()

	tr := newStreamingTransport(t, srv)

	stream, err := StreamEvents(context.Background(), tr, "2026-01-01", "2026-01-01", EventFilter{}, false)
	require.NoError(t, err)
	defer stream.Close()

	rec, ok, err := stream.NextNormalized()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "signup", rec.EventName)
	assert.Equal(t, "u1", rec.DistinctID)
	assert.Equal(t, "ins-1", rec.InsertID)
	assert.Equal(t, "pro", rec.Properties["plan"])
	_, hasDistinctID := rec.Properties["distinct_id"]
	assert.False(t, hasDistinctID)

	_, ok, err = stream.NextNormalized()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreamEvents_SynthesizesInsertIDWhenAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"event":"signup","properties":{"distinct_id":"u1","time":1767225600}}` + "\n"))
	}))
	defer srv.Close()

	tr := newStreamingTransport(t, srv)

	stream, err := StreamEvents(context.Background(), tr, "2026-01-01", "2026-01-01", EventFilter{}, false)
	require.NoError(t, err)
	defer stream.Close()

	rec, ok, err := stream.NextNormalized()
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, rec.InsertID)
}
