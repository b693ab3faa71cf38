package results

import (
	"sort"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
)

// TruncateToBucket floors a timestamp to the start of its calendar-aligned
// bucket in UTC. Weeks start on Monday.
func TruncateToBucket(ts time.Time, granularity string) time.Time {
	ts = ts.UTC()
	switch granularity {
	case GranularityHour:
		return ts.Truncate(time.Hour)
	case GranularityWeek:
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		// time.Weekday numbers Sunday as 0; shift so Monday opens the week.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
}

type seriesCell struct {
	assignments int64
	events      int64
	converters  map[string]struct{}
}

type seriesKey struct {
	bucket    time.Time
	variantID string
}

// buildTimeSeries groups assignments and attributed events into fixed
// calendar buckets per variant. Buckets outside [start, end] are dropped.
func buildTimeSeries(assignments []domain.Assignment, attributed []AttributedEvent, variants []domain.Variant, start, end time.Time, granularity string) []domain.TimeSeriesPoint {
	names := make(map[string]string, len(variants))
	for _, v := range variants {
		names[v.ID] = v.Name
	}

	cells := make(map[seriesKey]*seriesCell)
	cell := func(bucket time.Time, variantID string) *seriesCell {
		key := seriesKey{bucket: bucket, variantID: variantID}
		c, ok := cells[key]
		if !ok {
			c = &seriesCell{converters: make(map[string]struct{})}
			cells[key] = c
		}
		return c
	}
	inWindow := func(bucket time.Time) bool {
		if !start.IsZero() && bucket.Before(TruncateToBucket(start, granularity)) {
			return false
		}
		if !end.IsZero() && bucket.After(end) {
			return false
		}
		return true
	}

	for _, assignment := range assignments {
		if _, ok := names[assignment.VariantID]; !ok {
			continue
		}
		bucket := TruncateToBucket(assignment.AssignedAt, granularity)
		if !inWindow(bucket) {
			continue
		}
		cell(bucket, assignment.VariantID).assignments++
	}

	for _, ae := range attributed {
		if _, ok := names[ae.VariantID]; !ok {
			continue
		}
		bucket := TruncateToBucket(ae.Event.Timestamp, granularity)
		if !inWindow(bucket) {
			continue
		}
		c := cell(bucket, ae.VariantID)
		c.events++
		c.converters[ae.Event.UserID] = struct{}{}
	}

	points := make([]domain.TimeSeriesPoint, 0, len(cells))
	for key, c := range cells {
		points = append(points, domain.TimeSeriesPoint{
			Timestamp:   key.bucket,
			VariantID:   key.variantID,
			VariantName: names[key.variantID],
			Assignments: c.assignments,
			Events:      c.events,
			Conversions: int64(len(c.converters)),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		if !points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].Timestamp.Before(points[j].Timestamp)
		}
		return points[i].VariantID < points[j].VariantID
	})
	return points
}
