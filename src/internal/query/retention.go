package query

import (
	"context"
	"net/http"
	"strconv"

	"github.com/discohead/mixpanel-data/src/internal/shaping"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const retentionEndpoint = "/query/retention"

var retentionIntervals = []string{
	string(types.RetentionDay), string(types.RetentionWeek), string(types.RetentionMonth),
}

// Retention runs a born/return cohort retention analysis. returnEvent may be
// empty to mean "any event" (standard retention), matching the Provider's
// convention.
func (q *LiveQueries) Retention(ctx context.Context, bornEvent, returnEvent, from, to string, interval types.RetentionInterval, intervalCount int) (types.RetentionResult, error) {
	if err := rejectUnlessOneOf(retentionEndpoint, "interval", string(interval), retentionIntervals...); err != nil {
		return types.RetentionResult{}, err
	}

	params := baseParams(from, to)
	params.Set("born_event", bornEvent)
	if returnEvent != "" {
		params.Set("event", returnEvent)
	}
	if intervalCount <= 0 {
		intervalCount = 1
	}
	params.Set("interval", string(interval))
	params.Set("interval_count", strconv.Itoa(intervalCount))

	envelope, err := q.tr.Request(ctx, http.MethodGet, retentionEndpoint, params, nil)
	if err != nil {
		return types.RetentionResult{}, err
	}
	return shaping.Retention(bornEvent, returnEvent, from, to, interval, intervalCount, envelope)
}
