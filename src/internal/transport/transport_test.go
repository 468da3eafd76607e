package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

func testCreds(t *testing.T) types.Credentials {
	t.Helper()
	creds, err := types.NewCredentials("acct", "secret", "proj", types.RegionUS)
	require.NoError(t, err)
	return creds
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func newTestTransport(t *testing.T, srv *httptest.Server) *Transport {
	t.Helper()
	tr := New(testCreds(t), WithRetryConfig(fastRetryConfig()), WithBaseURLs(srv.URL, srv.URL))
	return tr
}

func TestRequest_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"values":{"signup":{"2026-01-01":100}}}}`))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	out, err := tr.Request(context.Background(), http.MethodGet, "/segmentation", url.Values{}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "data")
}

func TestRequest_AuthFailureNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	_, err := tr.Request(context.Background(), http.MethodGet, "/segmentation", url.Values{}, nil)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.AuthenticationFailure, kind)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestRequest_RateLimitedExhaustsRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	_, err := tr.Request(context.Background(), http.MethodGet, "/segmentation", url.Values{}, nil)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.RateLimited, kind)
	assert.EqualValues(t, fastRetryConfig().MaxAttempts, atomic.LoadInt32(&attempts))
}

func TestRequest_ServerErrorRetriedThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	out, err := tr.Request(context.Background(), http.MethodGet, "/segmentation", url.Values{}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestRequest_QueryErrorNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid event"}`))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	_, err := tr.Request(context.Background(), http.MethodGet, "/segmentation", url.Values{}, nil)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.QueryError, kind)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}

func TestStreamNDJSON_SkipsBlankLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"event\":\"a\"}\n\n{\"event\":\"b\"}\n"))
	}))
	defer srv.Close()

	tr := newTestTransport(t, srv)
	stream, err := tr.StreamNDJSON(context.Background(), http.MethodGet, "/export", url.Values{})
	require.NoError(t, err)
	defer stream.Close()

	var records []string
	for {
		raw, ok, err := stream.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		records = append(records, string(raw))
	}
	assert.Len(t, records, 2)
}
