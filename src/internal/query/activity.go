package query

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/discohead/mixpanel-data/src/internal/shaping"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// activityFeedEndpoint is the dedicated per-user activity stream. Known-good
// contract: activity feed must cap its result size through this endpoint's
// own `limit` parameter (a reducer-based cap the Provider applies
// server-side), never through the scripting endpoint's `.take(n)`
// combinator, which materializes the full unbounded stream before
// truncating it client-side.
const activityFeedEndpoint = "/query/stream/query"

const defaultActivityLimit = 1000

// ActivityFeed fetches the raw event stream for one or more distinct IDs,
// optionally bounded by [from, to]. limit caps the number of events the
// Provider returns; zero or negative falls back to defaultActivityLimit.
func (q *LiveQueries) ActivityFeed(ctx context.Context, distinctIDs []string, from, to string, limit int) (types.ActivityFeedResult, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	params := url.Values{}
	for _, id := range distinctIDs {
		params.Add("distinct_ids", id)
	}
	if from != "" {
		params.Set("from_date", from)
	}
	if to != "" {
		params.Set("to_date", to)
	}
	params.Set("limit", strconv.Itoa(limit))

	var envelope struct {
		Events []interface{} `json:"events"`
	}
	if err := q.tr.RequestInto(ctx, http.MethodGet, activityFeedEndpoint, params, nil, &envelope); err != nil {
		return types.ActivityFeedResult{}, err
	}

	return shaping.ActivityFeed(distinctIDs, from, to, envelope.Events)
}
