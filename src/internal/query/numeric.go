package query

import (
	"context"
	"net/http"
	"sort"

	"github.com/discohead/mixpanel-data/src/internal/shaping"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

const (
	numericBucketEndpoint  = "/query/segmentation/numeric"
	numericSumEndpoint     = "/query/segmentation/sum"
	numericAverageEndpoint = "/query/segmentation/average"
)

var numericUnits = []string{string(types.NumericHour), string(types.NumericDay)}

// NumericBucket buckets event occurrences by a numeric property expression.
func (q *LiveQueries) NumericBucket(ctx context.Context, event, from, to, propExpr string, unit types.NumericUnit) (types.NumericBucketResult, error) {
	if err := rejectUnlessOneOf(numericBucketEndpoint, "unit", string(unit), numericUnits...); err != nil {
		return types.NumericBucketResult{}, err
	}

	params := baseParams(from, to)
	params.Set("event", event)
	params.Set("on", propExpr)
	params.Set("unit", string(unit))

	envelope, err := q.tr.Request(ctx, http.MethodGet, numericBucketEndpoint, params, nil)
	if err != nil {
		return types.NumericBucketResult{}, err
	}

	labels, err := sortedValueLabels(envelope, numericBucketEndpoint)
	if err != nil {
		return types.NumericBucketResult{}, err
	}
	return shaping.NumericBucket(event, from, to, propExpr, unit, envelope, labels)
}

// NumericSum sums a numeric property expression per bucket.
func (q *LiveQueries) NumericSum(ctx context.Context, event, from, to, propExpr string, unit types.NumericUnit) (types.NumericSumResult, error) {
	if err := rejectUnlessOneOf(numericSumEndpoint, "unit", string(unit), numericUnits...); err != nil {
		return types.NumericSumResult{}, err
	}

	params := baseParams(from, to)
	params.Set("event", event)
	params.Set("on", propExpr)
	params.Set("unit", string(unit))

	envelope, err := q.tr.Request(ctx, http.MethodGet, numericSumEndpoint, params, nil)
	if err != nil {
		return types.NumericSumResult{}, err
	}
	return shaping.NumericSum(event, from, to, propExpr, unit, envelope)
}

// NumericAverage averages a numeric property expression per bucket.
func (q *LiveQueries) NumericAverage(ctx context.Context, event, from, to, propExpr string, unit types.NumericUnit) (types.NumericAverageResult, error) {
	if err := rejectUnlessOneOf(numericAverageEndpoint, "unit", string(unit), numericUnits...); err != nil {
		return types.NumericAverageResult{}, err
	}

	params := baseParams(from, to)
	params.Set("event", event)
	params.Set("on", propExpr)
	params.Set("unit", string(unit))

	envelope, err := q.tr.Request(ctx, http.MethodGet, numericAverageEndpoint, params, nil)
	if err != nil {
		return types.NumericAverageResult{}, err
	}
	return shaping.NumericAverage(event, from, to, propExpr, unit, envelope)
}

func sortedValueLabels(envelope map[string]interface{}, endpoint string) ([]string, error) {
	data, ok := envelope["data"].(map[string]interface{})
	if !ok {
		return nil, types.NewError(types.ProtocolError, endpoint, nil, "expected object for \"data\", got %T", envelope["data"])
	}
	values, ok := data["values"].(map[string]interface{})
	if !ok {
		return nil, types.NewError(types.ProtocolError, endpoint, nil, "expected object for \"data.values\", got %T", data["values"])
	}
	labels := make([]string, 0, len(values))
	for label := range values {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}
