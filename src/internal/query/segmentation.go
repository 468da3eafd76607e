package query

import (
	"context"
	"net/http"

	"github.com/discohead/mixpanel-data/src/internal/shaping"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const segmentationEndpoint = "/query/segmentation"

var segmentationUnits = []string{
	string(types.UnitMinute), string(types.UnitHour), string(types.UnitDay),
	string(types.UnitWeek), string(types.UnitMonth),
}

// Segmentation runs an event segmentation, optionally broken out by
// segmentProp. An empty segmentProp yields one series keyed by event name.
func (q *LiveQueries) Segmentation(ctx context.Context, event, from, to string, unit types.SegmentationUnit, segmentProp string) (types.SegmentationResult, error) {
	if err := rejectUnlessOneOf(segmentationEndpoint, "unit", string(unit), segmentationUnits...); err != nil {
		return types.SegmentationResult{}, err
	}

	params := baseParams(from, to)
	params.Set("event", event)
	params.Set("unit", string(unit))
	if segmentProp != "" {
		params.Set("on", segmentProp)
	}

	envelope, err := q.tr.Request(ctx, http.MethodGet, segmentationEndpoint, params, nil)
	if err != nil {
		return types.SegmentationResult{}, err
	}
	return shaping.Segmentation(event, from, to, unit, segmentProp, envelope)
}
