package query

import (
	"context"
	"net/http"
	"strconv"

	"github.com/discohead/mixpanel-data/src/internal/shaping"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const funnelEndpoint = "/query/funnels"

// Funnel runs a pre-defined funnel compute for [from, to].
func (q *LiveQueries) Funnel(ctx context.Context, funnelID int64, from, to string) (types.FunnelResult, error) {
	params := baseParams(from, to)
	params.Set("funnel_id", strconv.FormatInt(funnelID, 10))

	envelope, err := q.tr.Request(ctx, http.MethodGet, funnelEndpoint, params, nil)
	if err != nil {
		return types.FunnelResult{}, err
	}

	name, _ := envelope["name"].(string)
	rawSteps, ok := envelope["steps"].([]interface{})
	if !ok {
		return types.FunnelResult{}, types.NewError(types.ProtocolError, funnelEndpoint, nil, "expected array for \"steps\", got %T", envelope["steps"])
	}

	stepEvents := make([]string, 0, len(rawSteps))
	stepCounts := make([]int64, 0, len(rawSteps))
	for i, rawStep := range rawSteps {
		step, ok := rawStep.(map[string]interface{})
		if !ok {
			return types.FunnelResult{}, types.NewError(types.ProtocolError, funnelEndpoint, nil, "expected object for steps[%d], got %T", i, rawStep)
		}
		eventName, _ := step["event"].(string)
		count, ok := step["count"].(float64)
		if !ok {
			return types.FunnelResult{}, types.NewError(types.ProtocolError, funnelEndpoint, nil, "non-numeric count at steps[%d]", i)
		}
		stepEvents = append(stepEvents, eventName)
		stepCounts = append(stepCounts, int64(count))
	}

	return shaping.Funnel(funnelID, name, from, to, stepEvents, stepCounts)
}
