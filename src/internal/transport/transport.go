// Package transport speaks the Provider's HTTP surface under its
// authentication, regional routing, rate-limit, and retry discipline. It is
// the single process-wide HTTP client every other component calls through.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const defaultTimeout = 30 * time.Second

// Transport is one HTTP client per process, configured for connection reuse.
type Transport struct {
	client   *http.Client
	creds    types.Credentials
	baseURL  string
	exportURL string
	logger   zerolog.Logger
	metrics  *Metrics
	budgets  *Budgets
	retry    RetryConfig
}

// Option configures a Transport at construction.
type Option func(*Transport)

// WithLogger overrides the default no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithHTTPClient overrides the underlying *http.Client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(t *Transport) { t.retry = cfg }
}

// WithBaseURLs overrides the region-derived base URLs, primarily for
// pointing a Transport at a test server.
func WithBaseURLs(queryBaseURL, exportBaseURL string) Option {
	return func(t *Transport) {
		t.baseURL = queryBaseURL
		t.exportURL = exportBaseURL
	}
}

// New constructs a Transport bound to creds' region.
func New(creds types.Credentials, opts ...Option) *Transport {
	t := &Transport{
		creds:   creds,
		baseURL: creds.Region().BaseURL(),
		exportURL: creds.Region().ExportBaseURL(),
		logger:  zerolog.Nop(),
		budgets: NewBudgets(),
		retry:   DefaultRetryConfig(),
		client: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
			},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Budgets exposes the advisory rate-limit budgets for higher layers.
func (t *Transport) Budgets() *Budgets { return t.budgets }

// Close releases the underlying connection pool's idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// Request issues one request against the query API and returns the parsed
// JSON body. Retries per RetryConfig on connection error, 5xx, and 429.
func (t *Transport) Request(ctx context.Context, method, endpoint string, params url.Values, body io.Reader) (map[string]interface{}, error) {
	raw, err := t.do(ctx, method, t.baseURL+endpoint, params, body, true)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ProtocolError, endpoint, err, "decoding response body")
	}
	return out, nil
}

// RequestRaw is like Request but returns the response body undecoded, for
// callers that need to inspect its size or shape before committing to a
// particular Go type.
func (t *Transport) RequestRaw(ctx context.Context, method, endpoint string, params url.Values, body io.Reader) ([]byte, error) {
	return t.do(ctx, method, t.baseURL+endpoint, params, body, true)
}

// RequestInto is like Request but unmarshals directly into out, which must
// be a pointer. Useful when the envelope is an array rather than an object.
func (t *Transport) RequestInto(ctx context.Context, method, endpoint string, params url.Values, body io.Reader, out interface{}) error {
	raw, err := t.do(ctx, method, t.baseURL+endpoint, params, body, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return types.NewError(types.ProtocolError, endpoint, err, "decoding response body")
	}
	return nil
}

// QueryEngagePage issues one page of a paged profile export and returns the
// full Provider envelope.
func (t *Transport) QueryEngagePage(ctx context.Context, page int, sessionID string, filters url.Values) (EngagePage, error) {
	params := url.Values{}
	for k, v := range filters {
		params[k] = v
	}
	params.Set("page", strconv.Itoa(page))
	if sessionID != "" {
		params.Set("session_id", sessionID)
	}

	raw, err := t.do(ctx, http.MethodPost, t.baseURL+"/engage", params, nil, true)
	if err != nil {
		return EngagePage{}, err
	}

	var page_ EngagePage
	if err := json.Unmarshal(raw, &page_); err != nil {
		return EngagePage{}, types.NewError(types.ProtocolError, "/engage", err, "decoding engage page")
	}
	return page_, nil
}

// EngagePage is the Provider's paged profile export envelope.
type EngagePage struct {
	Total     int64             `json:"total"`
	PageSize  int               `json:"page_size"`
	SessionID string            `json:"session_id"`
	Page      int               `json:"page"`
	Results   []types.RawProfile `json:"results"`
}

// StreamNDJSON issues a request against an export endpoint and returns a
// lazy line-by-line iterator over the newline-delimited JSON body. The
// caller must Close the stream; closing before exhausting it releases the
// underlying connection without leaving half-read bytes in the pool.
func (t *Transport) StreamNDJSON(ctx context.Context, method, endpoint string, params url.Values) (*NDJSONStream, error) {
	fullURL := t.exportURL + endpoint
	if params == nil {
		params = url.Values{}
	}
	if params.Get("project_id") == "" && t.creds.Project() != "" {
		params.Set("project_id", t.creds.Project())
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, types.NewError(types.TransportError, endpoint, err, "building request")
	}
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.TransportError, endpoint, err, "streaming request failed")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, t.classifyStatus(endpoint, resp, readBody(resp))
	}
	return newNDJSONStream(resp), nil
}

func (t *Transport) applyHeaders(req *http.Request) {
	req.SetBasicAuth(t.creds.Account(), t.creds.Secret())
	req.Header.Set("Accept", "application/json")
}

func (t *Transport) do(ctx context.Context, method, fullURL string, params url.Values, body io.Reader, idempotent bool) ([]byte, error) {
	endpoint := fullURL
	var bodyBytes []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, types.NewError(types.TransportError, endpoint, err, "reading request body")
		}
		bodyBytes = b
	}

	attempt := 0
	var lastErr error
	for attempt < t.retry.MaxAttempts {
		attempt++
		start := time.Now()

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, types.NewError(types.TransportError, endpoint, err, "building request")
		}
		effectiveParams := params
		if effectiveParams == nil {
			effectiveParams = url.Values{}
		}
		if effectiveParams.Get("project_id") == "" && t.creds.Project() != "" {
			effectiveParams.Set("project_id", t.creds.Project())
		}
		req.URL.RawQuery = effectiveParams.Encode()
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		t.applyHeaders(req)

		resp, err := t.client.Do(req)
		elapsed := time.Since(start)

		if err != nil {
			lastErr = types.NewError(types.TransportError, endpoint, err, "request failed")
			t.logAttempt(endpoint, attempt, elapsed, "transport_error", err)
			if !idempotent || attempt >= t.retry.MaxAttempts {
				t.metrics.observeRequest(endpoint, "error", elapsed.Seconds())
				return nil, lastErr
			}
			t.metrics.observeRetry(endpoint)
			if waitErr := t.sleepBackoff(ctx, attempt, 0); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		raw := readBody(resp)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			t.metrics.observeRequest(endpoint, "success", elapsed.Seconds())
			return raw, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			t.metrics.observeRequest(endpoint, "auth_error", elapsed.Seconds())
			return nil, types.NewError(types.AuthenticationFailure, endpoint, nil, "authentication failed: %s", string(raw))

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			t.logAttempt(endpoint, attempt, elapsed, "rate_limited", nil)
			if attempt >= t.retry.MaxAttempts {
				t.metrics.observeRequest(endpoint, "rate_limited", elapsed.Seconds())
				return nil, &types.Error{Kind: types.RateLimited, Message: "rate limited after retries exhausted", Endpoint: endpoint, RetryAfter: retryAfter}
			}
			t.metrics.observeRetry(endpoint)
			if waitErr := t.sleepBackoff(ctx, attempt, retryAfter); waitErr != nil {
				return nil, waitErr
			}
			continue

		case resp.StatusCode >= 500:
			lastErr = types.NewError(types.ServerError, endpoint, nil, "server error %d: %s", resp.StatusCode, string(raw))
			t.logAttempt(endpoint, attempt, elapsed, "server_error", nil)
			if attempt >= t.retry.MaxAttempts {
				t.metrics.observeRequest(endpoint, "server_error", elapsed.Seconds())
				return nil, lastErr
			}
			t.metrics.observeRetry(endpoint)
			if waitErr := t.sleepBackoff(ctx, attempt, 0); waitErr != nil {
				return nil, waitErr
			}
			continue

		default:
			t.metrics.observeRequest(endpoint, "query_error", elapsed.Seconds())
			return nil, types.NewError(types.QueryError, endpoint, nil, "request rejected (%d): %s", resp.StatusCode, string(raw))
		}
	}
	return nil, lastErr
}

func (t *Transport) classifyStatus(endpoint string, resp *http.Response, raw []byte) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.AuthenticationFailure, endpoint, nil, "authentication failed: %s", string(raw))
	case resp.StatusCode == http.StatusTooManyRequests:
		return &types.Error{Kind: types.RateLimited, Message: "rate limited", Endpoint: endpoint, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return types.NewError(types.ServerError, endpoint, nil, "server error %d: %s", resp.StatusCode, string(raw))
	default:
		return types.NewError(types.QueryError, endpoint, nil, "request rejected (%d): %s", resp.StatusCode, string(raw))
	}
}

func (t *Transport) logAttempt(endpoint string, attempt int, elapsed time.Duration, outcome string, err error) {
	ev := t.logger.Warn().
		Str("endpoint", endpoint).
		Int("attempt", attempt).
		Dur("elapsed", elapsed).
		Str("outcome", outcome)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("provider request attempt")
}

func readBody(resp *http.Response) []byte {
	raw, _ := io.ReadAll(resp.Body)
	return raw
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
