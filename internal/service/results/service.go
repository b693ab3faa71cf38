package results

import (
	"context"
	"fmt"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

// Metrics receives counters for computed result sets. Implementations must
// be safe for concurrent use.
type Metrics interface {
	ResultsComputed(experimentID, format string)
}

type noopMetrics struct{}

func (noopMetrics) ResultsComputed(string, string) {}

// Service recomputes experiment results from stored assignments and events.
// Nothing here is persisted; every call derives the full result set fresh.
type Service struct {
	experiments repo.ExperimentRepository
	assignments repo.AssignmentRepository
	events      repo.EventRepository
	metrics     Metrics

	now func() time.Time
}

func New(experiments repo.ExperimentRepository, assignments repo.AssignmentRepository, events repo.EventRepository, metrics Metrics) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		experiments: experiments,
		assignments: assignments,
		events:      events,
		metrics:     metrics,
		now:         time.Now,
	}
}

// Compute builds the result set for an experiment. The analysis window
// defaults to [experiment start, now]; explicit Start/End options narrow or
// widen it. A running experiment with no assignments yields a well-formed
// empty result set, not an error.
func (s *Service) Compute(ctx context.Context, experimentID string, opts Options) (domain.ResultSet, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return domain.ResultSet{}, err
	}

	experiment, err := s.experiments.Get(ctx, experimentID)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("get experiment: %w", err)
	}

	start, end := s.window(experiment, opts)
	set := domain.ResultSet{
		ExperimentID:   experiment.ID,
		ExperimentName: experiment.Name,
		Status:         experiment.Status,
		AnalysisStart:  start,
		AnalysisEnd:    end,
	}

	counts, err := s.assignments.CountByVariant(ctx, experiment.ID)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("count assignments: %w", err)
	}

	assignments, err := s.listAllAssignments(ctx, experiment.ID)
	if err != nil {
		return domain.ResultSet{}, fmt.Errorf("list assignments: %w", err)
	}

	var attributed []AttributedEvent
	if len(assignments) > 0 {
		byUser := make(map[string]domain.Assignment, len(assignments))
		userIDs := make([]string, 0, len(assignments))
		for _, a := range assignments {
			byUser[a.UserID] = a
			userIDs = append(userIDs, a.UserID)
		}
		events, err := s.events.ListForUsers(ctx, userIDs, &start, &end, opts.EventTypes)
		if err != nil {
			return domain.ResultSet{}, fmt.Errorf("list events: %w", err)
		}
		attributed = Attribute(byUser, events, opts.EventTypes, start, end)
	}

	variantMetrics := aggregateVariants(experiment.Variants, counts, attributed)
	eventsByType := make(map[string]int64)
	for _, m := range variantMetrics {
		for eventType, count := range m.EventsByType {
			eventsByType[eventType] += count
		}
	}
	set.Summary = summarize(variantMetrics, eventsByType)

	switch opts.Format {
	case FormatSummary:
		// Headline numbers only.
	case FormatMetricsOnly:
		set.Variants = variantMetrics
		set.EventsByType = eventsByType
	default:
		set.Variants = variantMetrics
		set.EventsByType = eventsByType
		if opts.IncludeTimeSeries {
			set.TimeSeries = buildTimeSeries(assignments, attributed, experiment.Variants, start, end, opts.Granularity)
		}
	}

	s.metrics.ResultsComputed(experiment.ID, opts.Format)
	return set, nil
}

func (s *Service) window(experiment domain.Experiment, opts Options) (time.Time, time.Time) {
	start := experiment.CreatedAt
	if experiment.StartedAt != nil {
		start = *experiment.StartedAt
	}
	if opts.Start != nil {
		start = *opts.Start
	}
	end := s.now().UTC()
	if opts.End != nil {
		end = *opts.End
	}
	return start.UTC(), end.UTC()
}

const assignmentPageSize = 1000

func (s *Service) listAllAssignments(ctx context.Context, experimentID string) ([]domain.Assignment, error) {
	var all []domain.Assignment
	offset := 0
	for {
		page, total, err := s.assignments.ListByExperiment(ctx, experimentID, repo.AssignmentFilter{
			Limit:  assignmentPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			return all, nil
		}
	}
}
