// Package shaping contains the pure functions that map the Provider's
// heterogeneous JSON response envelopes into the uniform result values of
// the data model. Every function here is total for well-formed envelopes
// and returns a types.ProtocolError for malformed ones; none perform I/O.
package shaping

import (
	"fmt"
	"time"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

func protocolErr(endpoint, format string, args ...interface{}) error {
	return types.NewError(types.ProtocolError, endpoint, nil, format, args...)
}

func asMap(v interface{}, endpoint, field string) (map[string]interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, protocolErr(endpoint, "expected object for %q, got %T", field, v)
	}
	return m, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Segmentation shapes the /query/segmentation envelope:
// {"legend_size": N, "data": {"series": [...], "values": {<segment>: {<bucket>: count}}}}.
// When unsegmented, the outer key of values is the event name.
func Segmentation(event, from, to string, unit types.SegmentationUnit, segmentProp string, envelope map[string]interface{}) (types.SegmentationResult, error) {
	data, err := asMap(envelope["data"], "/query/segmentation", "data")
	if err != nil {
		return types.SegmentationResult{}, err
	}
	rawValues, err := asMap(data["values"], "/query/segmentation", "data.values")
	if err != nil {
		return types.SegmentationResult{}, err
	}

	series := make(map[string]map[string]int64, len(rawValues))
	var total int64
	for segment, rawBuckets := range rawValues {
		buckets, err := asMap(rawBuckets, "/query/segmentation", "data.values."+segment)
		if err != nil {
			return types.SegmentationResult{}, err
		}
		counts := make(map[string]int64, len(buckets))
		for bucket, rawCount := range buckets {
			count, ok := asFloat(rawCount)
			if !ok {
				return types.SegmentationResult{}, protocolErr("/query/segmentation", "non-numeric count at %s/%s", segment, bucket)
			}
			counts[bucket] = int64(count)
			total += int64(count)
		}
		series[segment] = counts
	}

	return types.SegmentationResult{
		Event:       event,
		From:        from,
		To:          to,
		Unit:        unit,
		SegmentProp: segmentProp,
		Total:       total,
		Series:      series,
	}, nil
}

// Funnel shapes a funnel-compute envelope's step counts into a FunnelResult.
// Step i's conversion is count_i/count_{i-1}, the rate from the previous step
// (0 when the previous step is empty); overall conversion is
// count_last/count_0. A single-step funnel has conversion 1.0.
func Funnel(funnelID int64, funnelName, from, to string, stepEvents []string, stepCounts []int64) (types.FunnelResult, error) {
	if len(stepCounts) != len(stepEvents) {
		return types.FunnelResult{}, protocolErr("/query/funnels", "step event/count length mismatch")
	}
	if len(stepCounts) == 0 {
		return types.FunnelResult{}, protocolErr("/query/funnels", "funnel has no steps")
	}

	first := stepCounts[0]
	steps := make([]types.FunnelStepReport, len(stepCounts))
	for i, count := range stepCounts {
		var rate float64
		switch {
		case i == 0:
			rate = 1.0
		case stepCounts[i-1] == 0:
			rate = 0
		default:
			rate = float64(count) / float64(stepCounts[i-1])
		}
		steps[i] = types.FunnelStepReport{
			Event:                      stepEvents[i],
			StepIndex:                  i,
			AbsoluteCount:              count,
			ConversionRateFromPrevious: rate,
		}
	}

	var overall float64
	if len(stepCounts) == 1 {
		overall = 1.0
	} else if first > 0 {
		overall = float64(stepCounts[len(stepCounts)-1]) / float64(first)
	}

	return types.FunnelResult{
		FunnelID:              funnelID,
		FunnelName:            funnelName,
		From:                  from,
		To:                    to,
		OverallConversionRate: overall,
		Steps:                 steps,
	}, nil
}

// Retention shapes the /query/retention envelope: a mapping from
// cohort-date to {count, "<period-index>": retained}. A period that has not
// yet elapsed (absent from the envelope) is omitted from Retention rather
// than reported as zero.
func Retention(bornEvent, returnEvent, from, to string, interval types.RetentionInterval, intervalCount int, envelope map[string]interface{}) (types.RetentionResult, error) {
	cohorts := make([]types.RetentionCohort, 0, len(envelope))
	for cohortDate, rawCohort := range envelope {
		cohortMap, err := asMap(rawCohort, "/query/retention", cohortDate)
		if err != nil {
			return types.RetentionResult{}, err
		}
		countF, ok := asFloat(cohortMap["count"])
		if !ok {
			return types.RetentionResult{}, protocolErr("/query/retention", "missing count for cohort %s", cohortDate)
		}
		size := int64(countF)

		retention := make([]float64, 0, intervalCount)
		for i := 0; i < intervalCount; i++ {
			key := fmt.Sprintf("%d", i)
			rawRetained, present := cohortMap[key]
			if !present {
				break // not-yet-elapsed periods are omitted, not zero-filled
			}
			retainedF, ok := asFloat(rawRetained)
			if !ok {
				return types.RetentionResult{}, protocolErr("/query/retention", "non-numeric retained count at %s/%s", cohortDate, key)
			}
			var rate float64
			if size > 0 {
				rate = retainedF / countF
			} else if i == 0 {
				rate = 0
			}
			retention = append(retention, rate)
		}
		if len(retention) > 0 && size > 0 {
			retention[0] = 1.0
		}

		cohorts = append(cohorts, types.RetentionCohort{
			CohortDate: cohortDate,
			Size:       size,
			Retention:  retention,
		})
	}

	return types.RetentionResult{
		BornEvent:     bornEvent,
		ReturnEvent:   returnEvent,
		From:          from,
		To:            to,
		Interval:      interval,
		IntervalCount: intervalCount,
		Cohorts:       cohorts,
	}, nil
}

// Frequency shapes the /query/retention/properties (frequency) envelope: a
// mapping from bucket to an "addiction curve" array where index N is the
// count of users active in at least N+1 sub-periods.
func Frequency(event, from, to string, outer types.OuterUnit, granularity types.SubGranularity, envelope map[string]interface{}) (types.FrequencyResult, error) {
	data := make(map[string][]int64, len(envelope))
	for bucket, rawArr := range envelope {
		arr, ok := rawArr.([]interface{})
		if !ok {
			return types.FrequencyResult{}, protocolErr("/query/retention/properties", "expected array for bucket %s", bucket)
		}
		counts := make([]int64, len(arr))
		for i, rawCount := range arr {
			count, ok := asFloat(rawCount)
			if !ok {
				return types.FrequencyResult{}, protocolErr("/query/retention/properties", "non-numeric entry at %s[%d]", bucket, i)
			}
			counts[i] = int64(count)
		}
		data[bucket] = counts
	}

	return types.FrequencyResult{
		Event:       event,
		From:        from,
		To:          to,
		OuterUnit:   outer,
		Granularity: granularity,
		Data:        data,
	}, nil
}

// NumericBucket shapes a /query/segmentation/numeric envelope. Bucket labels
// are Provider-assigned strings; Labels is labelOrder exactly as the caller
// passes it. The decoded envelope is a Go map, so the Provider's own label
// order is not available here.
func NumericBucket(event, from, to, propExpr string, unit types.NumericUnit, envelope map[string]interface{}, labelOrder []string) (types.NumericBucketResult, error) {
	data, err := asMap(envelope["data"], "/query/segmentation/numeric", "data")
	if err != nil {
		return types.NumericBucketResult{}, err
	}
	rawValues, err := asMap(data["values"], "/query/segmentation/numeric", "data.values")
	if err != nil {
		return types.NumericBucketResult{}, err
	}

	series := make(map[string]map[string]int64, len(rawValues))
	for label, rawBuckets := range rawValues {
		buckets, err := asMap(rawBuckets, "/query/segmentation/numeric", "data.values."+label)
		if err != nil {
			return types.NumericBucketResult{}, err
		}
		counts := make(map[string]int64, len(buckets))
		for bucket, rawCount := range buckets {
			count, ok := asFloat(rawCount)
			if !ok {
				return types.NumericBucketResult{}, protocolErr("/query/segmentation/numeric", "non-numeric count at %s/%s", label, bucket)
			}
			counts[bucket] = int64(count)
		}
		series[label] = counts
	}

	return types.NumericBucketResult{
		Event:              event,
		From:               from,
		To:                 to,
		PropertyExpression: propExpr,
		Unit:               unit,
		Series:             series,
		Labels:             labelOrder,
	}, nil
}

// NumericSum shapes a /query/segmentation/sum envelope.
func NumericSum(event, from, to, propExpr string, unit types.NumericUnit, envelope map[string]interface{}) (types.NumericSumResult, error) {
	data, err := asMap(envelope["data"], "/query/segmentation/sum", "data")
	if err != nil {
		return types.NumericSumResult{}, err
	}
	rawValues, err := asMap(data["values"], "/query/segmentation/sum", "data.values")
	if err != nil {
		return types.NumericSumResult{}, err
	}

	results := make(map[string]float64, len(rawValues))
	for bucket, rawVal := range rawValues {
		v, ok := asFloat(rawVal)
		if !ok {
			return types.NumericSumResult{}, protocolErr("/query/segmentation/sum", "non-numeric value at %s", bucket)
		}
		results[bucket] = v
	}

	var computedAt *time.Time
	if raw, ok := envelope["computed_at"].(string); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			computedAt = &t
		}
	}

	return types.NumericSumResult{
		Event:              event,
		From:               from,
		To:                 to,
		PropertyExpression: propExpr,
		Unit:               unit,
		Results:            results,
		ComputedAt:         computedAt,
	}, nil
}

// NumericAverage shapes a /query/segmentation/average envelope.
func NumericAverage(event, from, to, propExpr string, unit types.NumericUnit, envelope map[string]interface{}) (types.NumericAverageResult, error) {
	data, err := asMap(envelope["data"], "/query/segmentation/average", "data")
	if err != nil {
		return types.NumericAverageResult{}, err
	}
	rawValues, err := asMap(data["values"], "/query/segmentation/average", "data.values")
	if err != nil {
		return types.NumericAverageResult{}, err
	}

	results := make(map[string]float64, len(rawValues))
	for bucket, rawVal := range rawValues {
		v, ok := asFloat(rawVal)
		if !ok {
			return types.NumericAverageResult{}, protocolErr("/query/segmentation/average", "non-numeric value at %s", bucket)
		}
		results[bucket] = v
	}

	return types.NumericAverageResult{
		Event:              event,
		From:               from,
		To:                 to,
		PropertyExpression: propExpr,
		Unit:               unit,
		Results:            results,
	}, nil
}

// ActivityFeed shapes the activity-feed endpoint's event array.
func ActivityFeed(distinctIDs []string, from, to string, rawEvents []interface{}) (types.ActivityFeedResult, error) {
	events := make([]types.UserEvent, 0, len(rawEvents))
	for _, rawEvent := range rawEvents {
		m, err := asMap(rawEvent, "/query/stream/query", "event")
		if err != nil {
			return types.ActivityFeedResult{}, err
		}
		name, _ := m["event"].(string)
		props, _ := m["properties"].(map[string]interface{})

		var t time.Time
		if rawTime, ok := props["time"]; ok {
			if f, ok := asFloat(rawTime); ok {
				t = time.Unix(int64(f), 0).UTC()
			}
		}
		events = append(events, types.UserEvent{
			EventName:  name,
			Time:       t,
			Properties: types.Properties(props),
		})
	}

	return types.ActivityFeedResult{
		DistinctIDs: distinctIDs,
		From:        from,
		To:          to,
		Events:      events,
	}, nil
}

// SavedReport shapes a bookmark/Insights replay envelope.
func SavedReport(bookmarkID int64, reportType string, computedAt time.Time, from, to string, headers []string, envelope map[string]interface{}) (types.SavedReportResult, error) {
	data, err := asMap(envelope["data"], "/query/insights", "data")
	if err != nil {
		return types.SavedReportResult{}, err
	}
	rawValues, err := asMap(data["values"], "/query/insights", "data.values")
	if err != nil {
		return types.SavedReportResult{}, err
	}

	series := make(map[string]map[string]int64, len(rawValues))
	for label, rawBuckets := range rawValues {
		buckets, err := asMap(rawBuckets, "/query/insights", "data.values."+label)
		if err != nil {
			return types.SavedReportResult{}, err
		}
		counts := make(map[string]int64, len(buckets))
		for bucket, rawCount := range buckets {
			count, ok := asFloat(rawCount)
			if !ok {
				return types.SavedReportResult{}, protocolErr("/query/insights", "non-numeric count at %s/%s", label, bucket)
			}
			counts[bucket] = int64(count)
		}
		series[label] = counts
	}

	return types.SavedReportResult{
		BookmarkID: bookmarkID,
		ReportType: reportType,
		ComputedAt: computedAt,
		From:       from,
		To:         to,
		Headers:    headers,
		Series:     series,
	}, nil
}
