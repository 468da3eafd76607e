package query

import (
	"context"
	"net/http"

	"github.com/discohead/mixpanel-data/src/internal/shaping"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// frequencyEndpoint is the dedicated frequency/addiction-curve endpoint.
// Known-good contract: frequency must call this endpoint, never the
// segmentation endpoint — the two return incompatible envelope shapes and
// conflating them was a defect in an earlier implementation.
const frequencyEndpoint = "/query/retention/properties"

var outerUnits = []string{string(types.OuterDay), string(types.OuterWeek), string(types.OuterMonth)}
var subGranularities = []string{string(types.GranularityHour), string(types.GranularityDay)}

// Frequency runs the addiction-curve analysis: how many users performed
// event in at least N+1 sub-periods of granularity, per outer-unit bucket.
func (q *LiveQueries) Frequency(ctx context.Context, event, from, to string, outer types.OuterUnit, granularity types.SubGranularity) (types.FrequencyResult, error) {
	if err := rejectUnlessOneOf(frequencyEndpoint, "unit", string(outer), outerUnits...); err != nil {
		return types.FrequencyResult{}, err
	}
	if err := rejectUnlessOneOf(frequencyEndpoint, "addiction_unit", string(granularity), subGranularities...); err != nil {
		return types.FrequencyResult{}, err
	}

	params := baseParams(from, to)
	if event != "" {
		params.Set("event", event)
	}
	params.Set("unit", string(outer))
	params.Set("addiction_unit", string(granularity))

	envelope, err := q.tr.Request(ctx, http.MethodGet, frequencyEndpoint, params, nil)
	if err != nil {
		return types.FrequencyResult{}, err
	}
	return shaping.Frequency(event, from, to, outer, granularity, envelope)
}
