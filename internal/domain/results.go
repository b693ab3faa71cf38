package domain

import "time"

// ConfidenceLevel is a qualitative label derived from sample size and lift
// magnitude. It is a UX heuristic, not a statistical test.
type ConfidenceLevel string

const (
	ConfidenceLow         ConfidenceLevel = "low"
	ConfidenceMedium      ConfidenceLevel = "medium"
	ConfidenceHigh        ConfidenceLevel = "high"
	ConfidenceSignificant ConfidenceLevel = "significant"
)

// VariantMetrics are the per-variant aggregates of a computed result set.
// Lift is relative to the baseline variant and nil when the baseline rate is
// zero or the variant is the baseline itself.
type VariantMetrics struct {
	VariantID         string
	VariantName       string
	TotalAssignments  int64
	TotalEvents       int64
	ConvertedUsers    int64
	ConversionRate    float64
	EventsPerUser     float64
	EventsByType      map[string]int64
	Lift              *float64
	TrafficAllocation float64
}

// Summary is the headline block of a result set.
type Summary struct {
	TotalAssignments      int64
	TotalEvents           int64
	OverallConversionRate float64
	LeadingVariant        *string
	BaselineVariant       string
	Confidence            ConfidenceLevel
}

// TimeSeriesPoint is one calendar-aligned bucket of a variant's activity.
type TimeSeriesPoint struct {
	Timestamp   time.Time
	VariantID   string
	VariantName string
	Assignments int64
	Events      int64
	Conversions int64
}

// ResultSet is the derived output of the results engine. It is recomputed on
// every read and never persisted.
type ResultSet struct {
	ExperimentID   string
	ExperimentName string
	Status         ExperimentStatus
	AnalysisStart  time.Time
	AnalysisEnd    time.Time
	Summary        Summary
	Variants       []VariantMetrics
	EventsByType   map[string]int64
	TimeSeries     []TimeSeriesPoint
}
