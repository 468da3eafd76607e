package types

import "time"

// SegmentationUnit enumerates the bucket granularities the segmentation
// endpoint accepts.
type SegmentationUnit string

const (
	UnitMinute SegmentationUnit = "minute"
	UnitHour   SegmentationUnit = "hour"
	UnitDay    SegmentationUnit = "day"
	UnitWeek   SegmentationUnit = "week"
	UnitMonth  SegmentationUnit = "month"
)

// RetentionInterval enumerates the cohort-period granularities the
// retention endpoint accepts.
type RetentionInterval string

const (
	RetentionDay   RetentionInterval = "day"
	RetentionWeek  RetentionInterval = "week"
	RetentionMonth RetentionInterval = "month"
)

// OuterUnit enumerates the frequency endpoint's outer bucket granularity.
type OuterUnit string

const (
	OuterDay   OuterUnit = "day"
	OuterWeek  OuterUnit = "week"
	OuterMonth OuterUnit = "month"
)

// SubGranularity enumerates the frequency endpoint's sub-period granularity.
type SubGranularity string

const (
	GranularityHour SubGranularity = "hour"
	GranularityDay  SubGranularity = "day"
)

// NumericUnit enumerates the bucket granularity numeric endpoints accept.
type NumericUnit string

const (
	NumericHour NumericUnit = "hour"
	NumericDay  NumericUnit = "day"
)

// SegmentationResult is the uniform shape of the segmentation/multi-segment
// endpoints.
type SegmentationResult struct {
	Event          string
	From           string
	To             string
	Unit           SegmentationUnit
	SegmentProp    string // empty when unsegmented
	Total          int64
	Series         map[string]map[string]int64 // segment-value (or event name) -> bucket -> count
}

// FunnelStepReport is one step of a FunnelResult.
type FunnelStepReport struct {
	Event                     string
	StepIndex                 int
	AbsoluteCount             int64
	ConversionRateFromPrevious float64
}

// FunnelResult is the uniform shape of the funnel-compute endpoint.
type FunnelResult struct {
	FunnelID              int64
	FunnelName             string
	From                   string
	To                     string
	OverallConversionRate  float64
	Steps                  []FunnelStepReport
}

// RetentionCohort is one cohort row of a RetentionResult. Index 0 is the
// cohort-defining period; a period that has not yet elapsed is omitted from
// Retention rather than reported as zero.
type RetentionCohort struct {
	CohortDate string
	Size       int64
	Retention  []float64
}

// RetentionResult is the uniform shape of the retention endpoint.
type RetentionResult struct {
	BornEvent     string
	ReturnEvent   string // empty when absent
	From          string
	To            string
	Interval      RetentionInterval
	IntervalCount int
	Cohorts       []RetentionCohort
}

// UserEvent is one event in an ActivityFeedResult.
type UserEvent struct {
	EventName  string
	Time       time.Time
	Properties Properties
}

// ActivityFeedResult is the uniform shape of the activity-feed endpoint.
type ActivityFeedResult struct {
	DistinctIDs []string
	From        string // empty when absent
	To          string // empty when absent
	Events      []UserEvent
}

// FrequencyResult is the uniform shape of the frequency endpoint. Data[bucket]
// is an "addiction curve": index N is the count of users who performed the
// event in at least N+1 sub-periods of Granularity; values are non-increasing
// by construction.
type FrequencyResult struct {
	Event       string // empty when absent
	From        string
	To          string
	OuterUnit   OuterUnit
	Granularity SubGranularity
	Data        map[string][]int64
}

// NumericBucketResult is the uniform shape of the numeric-segmentation
// endpoint. Series is keyed by bucket label; Labels lists those labels in
// lexicographic order, not in the Provider's response order.
type NumericBucketResult struct {
	Event              string
	From               string
	To                 string
	PropertyExpression string
	Unit               NumericUnit
	Series             map[string]map[string]int64
	Labels             []string // Provider-assigned bucket labels, sorted lexicographically
}

// NumericSumResult is the uniform shape of the sum-segmentation endpoint.
type NumericSumResult struct {
	Event              string
	From               string
	To                 string
	PropertyExpression string
	Unit               NumericUnit
	Results            map[string]float64
	ComputedAt         *time.Time
}

// NumericAverageResult is the uniform shape of the average-segmentation
// endpoint.
type NumericAverageResult struct {
	Event              string
	From               string
	To                 string
	PropertyExpression string
	Unit               NumericUnit
	Results            map[string]float64
}

// SavedReportResult is the uniform shape of a bookmark/Insights replay.
type SavedReportResult struct {
	BookmarkID int64
	ReportType string
	ComputedAt time.Time
	From       string
	To         string
	Headers    []string
	Series     map[string]map[string]int64
}
