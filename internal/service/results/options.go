package results

import (
	"fmt"
	"strings"
	"time"
)

const (
	FormatFull        = "full"
	FormatSummary     = "summary"
	FormatMetricsOnly = "metrics_only"
)

const (
	GranularityHour = "hour"
	GranularityDay  = "day"
	GranularityWeek = "week"
)

// ValidationError aggregates results-query option issues.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "results options validation failed"
	}
	return "results options validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// Options controls a results computation. Zero values mean: full format,
// all event types, window from experiment start to now, no time series.
type Options struct {
	Format            string
	EventTypes        []string
	Start             *time.Time
	End               *time.Time
	IncludeTimeSeries bool
	Granularity       string
}

// Normalize trims and defaults option fields and validates the result.
// The returned Options are safe to use when the error is nil.
func (o Options) Normalize() (Options, error) {
	verr := &ValidationError{}

	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if o.Format == "" {
		o.Format = FormatFull
	}
	switch o.Format {
	case FormatFull, FormatSummary, FormatMetricsOnly:
	default:
		verr.Add(fmt.Sprintf("format must be one of: full, summary, metrics_only (got %q)", o.Format))
	}

	o.Granularity = strings.ToLower(strings.TrimSpace(o.Granularity))
	if o.Granularity == "" {
		o.Granularity = GranularityDay
	}
	switch o.Granularity {
	case GranularityHour, GranularityDay, GranularityWeek:
	default:
		verr.Add(fmt.Sprintf("granularity must be one of: hour, day, week (got %q)", o.Granularity))
	}

	types := make([]string, 0, len(o.EventTypes))
	seen := make(map[string]struct{}, len(o.EventTypes))
	for _, raw := range o.EventTypes {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		types = append(types, item)
	}
	o.EventTypes = types

	if o.Start != nil && o.End != nil && o.End.Before(*o.Start) {
		verr.Add("date range end must not be before start")
	}

	return o, verr.OrNil()
}
