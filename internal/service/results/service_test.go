package results

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

type fakeExperimentRepo struct {
	experiments map[string]domain.Experiment
}

func (f *fakeExperimentRepo) Create(context.Context, domain.Experiment) error { return nil }

func (f *fakeExperimentRepo) Get(_ context.Context, id string) (domain.Experiment, error) {
	experiment, ok := f.experiments[id]
	if !ok {
		return domain.Experiment{}, repo.ErrNotFound
	}
	return experiment, nil
}

func (f *fakeExperimentRepo) List(context.Context, repo.ExperimentFilter) ([]domain.Experiment, int64, error) {
	return nil, 0, nil
}

func (f *fakeExperimentRepo) UpdateStatus(context.Context, string, domain.ExperimentStatus, *time.Time, *time.Time) error {
	return nil
}

func (f *fakeExperimentRepo) UpdateDetails(context.Context, string, *string, *string) error {
	return nil
}

func (f *fakeExperimentRepo) Delete(context.Context, string) error { return nil }

type fakeAssignmentRepo struct {
	assignments []domain.Assignment
}

func (f *fakeAssignmentRepo) Get(_ context.Context, experimentID, userID string) (domain.Assignment, error) {
	for _, a := range f.assignments {
		if a.ExperimentID == experimentID && a.UserID == userID {
			return a, nil
		}
	}
	return domain.Assignment{}, repo.ErrNotFound
}

func (f *fakeAssignmentRepo) Insert(_ context.Context, assignment domain.Assignment) error {
	f.assignments = append(f.assignments, assignment)
	return nil
}

func (f *fakeAssignmentRepo) ListByExperiment(_ context.Context, experimentID string, filter repo.AssignmentFilter) ([]domain.Assignment, int64, error) {
	var matched []domain.Assignment
	for _, a := range f.assignments {
		if a.ExperimentID == experimentID {
			matched = append(matched, a)
		}
	}
	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (f *fakeAssignmentRepo) CountByVariant(_ context.Context, experimentID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, a := range f.assignments {
		if a.ExperimentID == experimentID {
			counts[a.VariantID]++
		}
	}
	return counts, nil
}

type fakeEventRepo struct {
	events []domain.Event
}

func (f *fakeEventRepo) Insert(_ context.Context, event domain.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) InsertBatch(_ context.Context, events []domain.Event) error {
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeEventRepo) List(context.Context, repo.EventFilter) ([]domain.Event, int64, error) {
	return nil, 0, nil
}

func (f *fakeEventRepo) ListForUsers(_ context.Context, userIDs []string, since, until *time.Time, types []string) ([]domain.Event, error) {
	users := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		users[id] = struct{}{}
	}
	typeSet := make(map[string]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}
	var out []domain.Event
	for _, e := range f.events {
		if _, ok := users[e.UserID]; !ok {
			continue
		}
		if since != nil && e.Timestamp.Before(*since) {
			continue
		}
		if until != nil && e.Timestamp.After(*until) {
			continue
		}
		if len(typeSet) > 0 {
			if _, ok := typeSet[e.Type]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEventRepo) DistinctTypes(context.Context) ([]repo.EventTypeCount, error) {
	return nil, nil
}

func newResultsFixture() (*Service, *fakeExperimentRepo, *fakeAssignmentRepo, *fakeEventRepo) {
	experiments := &fakeExperimentRepo{experiments: make(map[string]domain.Experiment)}
	assignments := &fakeAssignmentRepo{}
	events := &fakeEventRepo{}
	svc := New(experiments, assignments, events, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC) }
	return svc, experiments, assignments, events
}

func checkoutExperiment(started time.Time) domain.Experiment {
	return domain.Experiment{
		ID:        "exp-checkout",
		Name:      "checkout-button-color",
		Status:    domain.StatusRunning,
		CreatedAt: started.Add(-24 * time.Hour),
		StartedAt: &started,
		Variants: []domain.Variant{
			{ID: "v-control", ExperimentID: "exp-checkout", Name: "control", TrafficAllocation: 50},
			{ID: "v-treatment", ExperimentID: "exp-checkout", Name: "treatment", TrafficAllocation: 50},
		},
	}
}

func TestComputePurchaseFunnel(t *testing.T) {
	svc, experiments, assignments, events := newResultsFixture()

	started := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	experiments.experiments["exp-checkout"] = checkoutExperiment(started)

	// 20 users split evenly, odd users on treatment.
	for i := 0; i < 20; i++ {
		variantID := "v-control"
		if i%2 == 1 {
			variantID = "v-treatment"
		}
		assignments.assignments = append(assignments.assignments, domain.Assignment{
			ID:           fmt.Sprintf("a-%d", i),
			ExperimentID: "exp-checkout",
			VariantID:    variantID,
			UserID:       fmt.Sprintf("user-%d", i),
			AssignedAt:   started.Add(time.Duration(i) * time.Minute),
		})
	}
	// 15 clicks and 8 purchases, all after assignment.
	for i := 0; i < 15; i++ {
		events.events = append(events.events, domain.Event{
			ID:        fmt.Sprintf("click-%d", i),
			UserID:    fmt.Sprintf("user-%d", i),
			Type:      "click",
			Timestamp: started.Add(time.Hour),
		})
	}
	for i := 0; i < 8; i++ {
		events.events = append(events.events, domain.Event{
			ID:        fmt.Sprintf("purchase-%d", i),
			UserID:    fmt.Sprintf("user-%d", i),
			Type:      "purchase",
			Timestamp: started.Add(2 * time.Hour),
		})
	}

	set, err := svc.Compute(context.Background(), "exp-checkout", Options{EventTypes: []string{"purchase"}})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}

	// The type filter narrows events, never assignments.
	if set.Summary.TotalAssignments != 20 {
		t.Fatalf("total assignments = %d, want 20", set.Summary.TotalAssignments)
	}
	if set.Summary.TotalEvents != 8 {
		t.Fatalf("total events = %d, want 8", set.Summary.TotalEvents)
	}
	if set.Summary.OverallConversionRate != 0.4 {
		t.Fatalf("overall conversion rate = %v, want 0.4", set.Summary.OverallConversionRate)
	}
	if set.Summary.BaselineVariant != "control" {
		t.Fatalf("baseline variant = %q, want control", set.Summary.BaselineVariant)
	}
	if len(set.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(set.Variants))
	}
	if set.EventsByType["purchase"] != 8 {
		t.Fatalf("purchase count = %d, want 8", set.EventsByType["purchase"])
	}
	if _, ok := set.EventsByType["click"]; ok {
		t.Fatal("click events leaked through the type filter")
	}
}

func TestComputeEmptyExperiment(t *testing.T) {
	svc, experiments, _, _ := newResultsFixture()
	started := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	experiments.experiments["exp-checkout"] = checkoutExperiment(started)

	set, err := svc.Compute(context.Background(), "exp-checkout", Options{})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if set.Summary.TotalAssignments != 0 || set.Summary.TotalEvents != 0 {
		t.Fatalf("summary = %+v, want zero totals", set.Summary)
	}
	if set.Summary.Confidence != domain.ConfidenceLow {
		t.Fatalf("confidence = %q, want low", set.Summary.Confidence)
	}
	if len(set.Variants) != 2 {
		t.Fatalf("variants = %d, want per-variant rows even with no traffic", len(set.Variants))
	}
	if !set.AnalysisStart.Equal(started) {
		t.Fatalf("analysis start = %v, want %v", set.AnalysisStart, started)
	}
}

func TestComputeFormats(t *testing.T) {
	svc, experiments, assignments, events := newResultsFixture()
	started := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	experiments.experiments["exp-checkout"] = checkoutExperiment(started)
	assignments.assignments = append(assignments.assignments, domain.Assignment{
		ID: "a-1", ExperimentID: "exp-checkout", VariantID: "v-control", UserID: "user-1", AssignedAt: started,
	})
	events.events = append(events.events, domain.Event{
		ID: "e-1", UserID: "user-1", Type: "click", Timestamp: started.Add(time.Hour),
	})

	summary, err := svc.Compute(context.Background(), "exp-checkout", Options{Format: FormatSummary})
	if err != nil {
		t.Fatalf("Compute(summary) error: %v", err)
	}
	if summary.Variants != nil || summary.EventsByType != nil {
		t.Fatal("summary format must drop per-variant blocks")
	}
	if summary.Summary.TotalEvents != 1 {
		t.Fatalf("summary total events = %d, want 1", summary.Summary.TotalEvents)
	}

	metricsOnly, err := svc.Compute(context.Background(), "exp-checkout", Options{Format: FormatMetricsOnly, IncludeTimeSeries: true})
	if err != nil {
		t.Fatalf("Compute(metrics_only) error: %v", err)
	}
	if metricsOnly.Variants == nil {
		t.Fatal("metrics_only format must keep per-variant blocks")
	}
	if metricsOnly.TimeSeries != nil {
		t.Fatal("metrics_only format must drop the time series")
	}

	full, err := svc.Compute(context.Background(), "exp-checkout", Options{IncludeTimeSeries: true, Granularity: GranularityDay})
	if err != nil {
		t.Fatalf("Compute(full) error: %v", err)
	}
	if len(full.TimeSeries) == 0 {
		t.Fatal("full format with time series requested has no points")
	}
}

func TestComputeUnknownExperiment(t *testing.T) {
	svc, _, _, _ := newResultsFixture()
	_, err := svc.Compute(context.Background(), "missing", Options{})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestComputeRejectsBadOptions(t *testing.T) {
	svc, experiments, _, _ := newResultsFixture()
	experiments.experiments["exp-checkout"] = checkoutExperiment(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	_, err := svc.Compute(context.Background(), "exp-checkout", Options{Format: "xml"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
}

func TestComputePaginatesAssignments(t *testing.T) {
	svc, experiments, assignments, _ := newResultsFixture()
	started := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	experiments.experiments["exp-checkout"] = checkoutExperiment(started)

	for i := 0; i < assignmentPageSize+250; i++ {
		variantID := "v-control"
		if i%2 == 1 {
			variantID = "v-treatment"
		}
		assignments.assignments = append(assignments.assignments, domain.Assignment{
			ID:           fmt.Sprintf("a-%d", i),
			ExperimentID: "exp-checkout",
			VariantID:    variantID,
			UserID:       fmt.Sprintf("user-%d", i),
			AssignedAt:   started,
		})
	}

	set, err := svc.Compute(context.Background(), "exp-checkout", Options{Format: FormatSummary})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if want := int64(assignmentPageSize + 250); set.Summary.TotalAssignments != want {
		t.Fatalf("total assignments = %d, want %d", set.Summary.TotalAssignments, want)
	}
}
