package query

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/discohead/mixpanel-data/src/internal/shaping"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const savedReportEndpoint = "/query/insights"
const bookmarkListEndpoint = "/query/bookmarks/list"
const jqlEndpoint = "/query/jql"

// maxSavedReportResponseBytes is the response-size ceiling a saved-report
// listing must honor. Known-good contract: listing must support paging
// and/or caller-supplied field projection so a workspace with thousands of
// bookmarks never has to materialize an envelope past this ceiling.
const maxSavedReportResponseBytes = 1 << 20 // 1 MiB

// SavedReport replays a bookmarked Insights report. No date range is sent;
// the result's From and To are left empty.
func (q *LiveQueries) SavedReport(ctx context.Context, bookmarkID int64, reportType string, headers []string) (types.SavedReportResult, error) {
	params := url.Values{"bookmark_id": {strconv.FormatInt(bookmarkID, 10)}}

	envelope, err := q.tr.Request(ctx, http.MethodGet, savedReportEndpoint, params, nil)
	if err != nil {
		return types.SavedReportResult{}, err
	}
	return shaping.SavedReport(bookmarkID, reportType, time.Now().UTC(), "", "", headers, envelope)
}

// BookmarkSummary is one row of a saved-report listing: only the fields a
// caller projected, never the full computed series.
type BookmarkSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"report_type"`
}

// ListBookmarks lists saved reports a page at a time. fields, when
// non-empty, is forwarded as a projection so the Provider need not compute
// and return full report bodies just to enumerate them. The raw response is
// rejected before decoding if it exceeds maxSavedReportResponseBytes.
func (q *LiveQueries) ListBookmarks(ctx context.Context, page, pageSize int, fields []string) ([]BookmarkSummary, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	params := url.Values{
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
	}
	if len(fields) > 0 {
		encoded, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		params.Set("fields", string(encoded))
	}

	raw, err := q.tr.RequestRaw(ctx, http.MethodGet, bookmarkListEndpoint, params, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) > maxSavedReportResponseBytes {
		return nil, types.NewError(types.ProtocolError, bookmarkListEndpoint, nil, "response of %d bytes exceeds the %d byte ceiling", len(raw), maxSavedReportResponseBytes)
	}

	var out struct {
		Results []BookmarkSummary `json:"results"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, types.NewError(types.ProtocolError, bookmarkListEndpoint, err, "decoding bookmark listing")
	}
	return out.Results, nil
}

// RunJQL executes an ad-hoc JQL script and returns its result verbatim; the
// script's output shape is caller-defined and is not passed through
// ResultShaping.
func (q *LiveQueries) RunJQL(ctx context.Context, script string, params map[string]interface{}) (json.RawMessage, error) {
	body := map[string]interface{}{"script": script}
	if params != nil {
		body["params"] = params
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	raw, err := q.tr.RequestRaw(ctx, http.MethodPost, jqlEndpoint, nil, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
