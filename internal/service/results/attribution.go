package results

import (
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
)

// AttributedEvent is an event credited to the variant its user was
// assigned to.
type AttributedEvent struct {
	Event     domain.Event
	VariantID string
}

// Attribute selects the events that count toward an experiment.
//
// An event is attributable only when its user holds an assignment and the
// event timestamp is at or after the assignment timestamp; anything earlier
// is pre-experiment behavior and never counts, no matter what window or
// type filters say. The window [start, end] and the event-type set are
// intersected on top of that rule.
func Attribute(assignments map[string]domain.Assignment, events []domain.Event, types []string, start, end time.Time) []AttributedEvent {
	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	out := make([]AttributedEvent, 0, len(events))
	for _, event := range events {
		assignment, ok := assignments[event.UserID]
		if !ok {
			continue
		}
		if event.Timestamp.Before(assignment.AssignedAt) {
			continue
		}
		if !start.IsZero() && event.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && event.Timestamp.After(end) {
			continue
		}
		if len(typeSet) > 0 {
			if _, ok := typeSet[event.Type]; !ok {
				continue
			}
		}
		out = append(out, AttributedEvent{Event: event, VariantID: assignment.VariantID})
	}
	return out
}
