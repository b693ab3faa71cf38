package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
	"github.com/variant-labs/variant-go/internal/service/assign"
	"github.com/variant-labs/variant-go/internal/service/export"
	"github.com/variant-labs/variant-go/internal/service/results"
)

type memExperimentStore struct {
	mu    sync.Mutex
	items map[string]domain.Experiment
	order []string
}

func newMemExperimentStore() *memExperimentStore {
	return &memExperimentStore{items: map[string]domain.Experiment{}}
}

func (s *memExperimentStore) put(experiment domain.Experiment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[experiment.ID]; !ok {
		s.order = append(s.order, experiment.ID)
	}
	s.items[experiment.ID] = experiment
}

func (s *memExperimentStore) Create(_ context.Context, experiment domain.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[experiment.ID]; ok {
		return repo.ErrConflict
	}
	s.items[experiment.ID] = experiment
	s.order = append(s.order, experiment.ID)
	return nil
}

func (s *memExperimentStore) Get(_ context.Context, id string) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	experiment, ok := s.items[id]
	if !ok {
		return domain.Experiment{}, repo.ErrNotFound
	}
	return experiment, nil
}

func (s *memExperimentStore) List(_ context.Context, filter repo.ExperimentFilter) ([]domain.Experiment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.Experiment, 0, len(s.order))
	for _, id := range s.order {
		experiment := s.items[id]
		if filter.Status != "" && experiment.Status != filter.Status {
			continue
		}
		matched = append(matched, experiment)
	}
	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *memExperimentStore) UpdateStatus(_ context.Context, id string, status domain.ExperimentStatus, startedAt, endedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	experiment, ok := s.items[id]
	if !ok {
		return repo.ErrNotFound
	}
	experiment.Status = status
	if startedAt != nil {
		experiment.StartedAt = startedAt
	}
	if endedAt != nil {
		experiment.EndedAt = endedAt
	}
	s.items[id] = experiment
	return nil
}

func (s *memExperimentStore) UpdateDetails(_ context.Context, id string, name, description *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	experiment, ok := s.items[id]
	if !ok {
		return repo.ErrNotFound
	}
	if name != nil {
		experiment.Name = *name
	}
	if description != nil {
		experiment.Description = *description
	}
	s.items[id] = experiment
	return nil
}

func (s *memExperimentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

type memAssignmentStore struct {
	mu    sync.Mutex
	items []domain.Assignment
}

func (s *memAssignmentStore) Get(_ context.Context, experimentID, userID string) (domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, assignment := range s.items {
		if assignment.ExperimentID == experimentID && assignment.UserID == userID {
			return assignment, nil
		}
	}
	return domain.Assignment{}, repo.ErrNotFound
}

func (s *memAssignmentStore) Insert(_ context.Context, assignment domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.ExperimentID == assignment.ExperimentID && existing.UserID == assignment.UserID {
			return repo.ErrConflict
		}
	}
	s.items = append(s.items, assignment)
	return nil
}

func (s *memAssignmentStore) ListByExperiment(_ context.Context, experimentID string, filter repo.AssignmentFilter) ([]domain.Assignment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.Assignment, 0, len(s.items))
	for _, assignment := range s.items {
		if assignment.ExperimentID != experimentID {
			continue
		}
		if filter.VariantID != "" && assignment.VariantID != filter.VariantID {
			continue
		}
		matched = append(matched, assignment)
	}
	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *memAssignmentStore) CountByVariant(_ context.Context, experimentID string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, assignment := range s.items {
		if assignment.ExperimentID == experimentID {
			counts[assignment.VariantID]++
		}
	}
	return counts, nil
}

type memEventStore struct {
	mu    sync.Mutex
	items []domain.Event
}

func (s *memEventStore) Insert(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, event)
	return nil
}

func (s *memEventStore) InsertBatch(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, events...)
	return nil
}

func (s *memEventStore) List(_ context.Context, filter repo.EventFilter) ([]domain.Event, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]domain.Event, 0, len(s.items))
	for _, event := range s.items {
		if filter.UserID != "" && event.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		if filter.Since != nil && event.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && event.Timestamp.After(*filter.Until) {
			continue
		}
		matched = append(matched, event)
	}
	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *memEventStore) ListForUsers(_ context.Context, userIDs []string, since, until *time.Time, types []string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		users[id] = struct{}{}
	}
	wantType := make(map[string]struct{}, len(types))
	for _, t := range types {
		wantType[t] = struct{}{}
	}
	matched := make([]domain.Event, 0, len(s.items))
	for _, event := range s.items {
		if _, ok := users[event.UserID]; !ok {
			continue
		}
		if len(wantType) > 0 {
			if _, ok := wantType[event.Type]; !ok {
				continue
			}
		}
		if since != nil && event.Timestamp.Before(*since) {
			continue
		}
		if until != nil && event.Timestamp.After(*until) {
			continue
		}
		matched = append(matched, event)
	}
	return matched, nil
}

func (s *memEventStore) DistinctTypes(_ context.Context) ([]repo.EventTypeCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, event := range s.items {
		counts[event.Type]++
	}
	out := make([]repo.EventTypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, repo.EventTypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

type captureUploader struct {
	key         string
	contentType string
	payload     []byte
}

func (u *captureUploader) Upload(_ context.Context, key, contentType string, payload []byte) error {
	u.key = key
	u.contentType = contentType
	u.payload = append([]byte(nil), payload...)
	return nil
}

type countingMetrics struct {
	events  int
	exports int
}

func (m *countingMetrics) EventRecorded(string) { m.events++ }
func (m *countingMetrics) ExportCompleted()     { m.exports++ }

type apiHarness struct {
	experiments *memExperimentStore
	assignments *memAssignmentStore
	events      *memEventStore
	uploader    *captureUploader
	metrics     *countingMetrics
	mux         *http.ServeMux
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	experiments := newMemExperimentStore()
	assignments := &memAssignmentStore{}
	events := &memEventStore{}
	uploader := &captureUploader{}
	apiMetrics := &countingMetrics{}

	resultsSvc := results.New(experiments, assignments, events, nil)
	api := newExperimentsAPI(apiDeps{
		logger:      slog.New(slog.NewTextHandler(new(bytes.Buffer), nil)),
		experiments: experiments,
		assignments: assignments,
		events:      events,
		assign:      assign.New(experiments, assignments, nil),
		results:     resultsSvc,
		export:      export.New(experiments, assignments, events, resultsSvc, uploader),
		metrics:     apiMetrics,
	})

	mux := http.NewServeMux()
	api.register(mux)
	return &apiHarness{
		experiments: experiments,
		assignments: assignments,
		events:      events,
		uploader:    uploader,
		metrics:     apiMetrics,
		mux:         mux,
	}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func seedRunningExperiment(h *apiHarness, id string) domain.Experiment {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	experiment := domain.Experiment{
		ID:        id,
		Name:      "checkout-button",
		Status:    domain.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
		Variants: []domain.Variant{
			{ID: id + "-control", ExperimentID: id, Name: "control", TrafficAllocation: 50, CreatedAt: now},
			{ID: id + "-treatment", ExperimentID: id, Name: "treatment", TrafficAllocation: 50, CreatedAt: now},
		},
	}
	h.experiments.put(experiment)
	return experiment
}

func TestCreateExperiment(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/experiments", map[string]any{
		"name":        "pricing-page",
		"description": "new pricing layout",
		"variants": []map[string]any{
			{"name": "control", "traffic_allocation": 50},
			{"name": "compact", "traffic_allocation": 50, "config": map[string]any{"layout": "compact"}},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "draft" {
		t.Fatalf("status = %v, want draft", body["status"])
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("response has no experiment id")
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/experiments/"+id {
		t.Fatalf("Location = %q", loc)
	}
	variants, _ := body["variants"].([]any)
	if len(variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(variants))
	}
}

func TestCreateExperimentRejectsOverAllocation(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/experiments", map[string]any{
		"name": "broken",
		"variants": []map[string]any{
			{"name": "a", "traffic_allocation": 70},
			{"name": "b", "traffic_allocation": 70},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "invalid_experiment" {
		t.Fatalf("error = %v, want invalid_experiment", body["error"])
	}
}

func TestStatusTransitions(t *testing.T) {
	h := newAPIHarness(t)
	experiment := seedRunningExperiment(h, "exp-status")
	experiment.Status = domain.StatusDraft
	experiment.StartedAt = nil
	h.experiments.put(experiment)

	rec := h.do(t, http.MethodPost, "/v1/experiments/exp-status/status", map[string]any{"status": "running"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "running" {
		t.Fatalf("status = %v, want running", body["status"])
	}
	if body["started_at"] == nil {
		t.Fatal("started_at not stamped on first transition to running")
	}

	rec = h.do(t, http.MethodPost, "/v1/experiments/exp-status/status", map[string]any{"status": "draft"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["error"] != "invalid_transition" || body["from"] != "running" || body["to"] != "draft" {
		t.Fatalf("unexpected conflict body: %v", body)
	}
}

func TestResolveAssignmentIdempotent(t *testing.T) {
	h := newAPIHarness(t)
	seedRunningExperiment(h, "exp-resolve")

	first := h.do(t, http.MethodPost, "/v1/experiments/exp-resolve/assignments", map[string]any{"user_id": "user-42"})
	if first.Code != http.StatusCreated {
		t.Fatalf("first resolve status = %d, want 201, body %s", first.Code, first.Body.String())
	}
	firstBody := decodeBody(t, first)
	if firstBody["is_new"] != true {
		t.Fatalf("first resolve is_new = %v, want true", firstBody["is_new"])
	}

	second := h.do(t, http.MethodPost, "/v1/experiments/exp-resolve/assignments", map[string]any{"user_id": "user-42"})
	if second.Code != http.StatusOK {
		t.Fatalf("second resolve status = %d, want 200", second.Code)
	}
	secondBody := decodeBody(t, second)
	if secondBody["is_new"] != false {
		t.Fatalf("second resolve is_new = %v, want false", secondBody["is_new"])
	}

	firstAssignment := firstBody["assignment"].(map[string]any)
	secondAssignment := secondBody["assignment"].(map[string]any)
	if firstAssignment["variant_id"] != secondAssignment["variant_id"] {
		t.Fatalf("variant changed between resolves: %v vs %v",
			firstAssignment["variant_id"], secondAssignment["variant_id"])
	}
}

func TestListAssignmentsLimitClamp(t *testing.T) {
	h := newAPIHarness(t)
	seedRunningExperiment(h, "exp-clamp")

	rec := h.do(t, http.MethodGet, "/v1/experiments/exp-clamp/assignments?limit=750", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["limit"] != float64(750) {
		t.Fatalf("limit = %v, want 750", body["limit"])
	}

	rec = h.do(t, http.MethodGet, "/v1/experiments/exp-clamp/assignments?limit=5000", nil)
	if body := decodeBody(t, rec); body["limit"] != float64(1000) {
		t.Fatalf("limit = %v, want clamp to 1000", body["limit"])
	}
}

func TestResolveAssignmentExperimentNotRunning(t *testing.T) {
	h := newAPIHarness(t)
	experiment := seedRunningExperiment(h, "exp-draft")
	experiment.Status = domain.StatusDraft
	h.experiments.put(experiment)

	rec := h.do(t, http.MethodPost, "/v1/experiments/exp-draft/assignments", map[string]any{"user_id": "user-1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["error"] != "experiment_not_running" {
		t.Fatalf("error = %v, want experiment_not_running", body["error"])
	}
}

func TestResolveAssignmentUnknownExperiment(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/experiments/missing/assignments", map[string]any{"user_id": "user-1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRecordAndListEvents(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/events", map[string]any{
		"user_id":    "user-7",
		"event_type": "purchase",
		"properties": map[string]any{"amount": 19.99},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if h.metrics.events != 1 {
		t.Fatalf("events metric = %d, want 1", h.metrics.events)
	}

	rec = h.do(t, http.MethodPost, "/v1/events/batch", map[string]any{
		"events": []map[string]any{
			{"user_id": "user-7", "event_type": "click"},
			{"user_id": "user-8", "event_type": "click"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["recorded"] != float64(2) {
		t.Fatalf("recorded = %v, want 2", body["recorded"])
	}

	rec = h.do(t, http.MethodGet, "/v1/events?event_type=click", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["total"] != float64(2) {
		t.Fatalf("total = %v, want 2", body["total"])
	}

	rec = h.do(t, http.MethodGet, "/v1/events/types", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("types status = %d, want 200", rec.Code)
	}
	body = decodeBody(t, rec)
	types, _ := body["event_types"].([]any)
	if len(types) != 2 {
		t.Fatalf("event_types = %d entries, want 2", len(types))
	}
}

func TestRecordEventRejectsMissingFields(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/events", map[string]any{"user_id": "user-7"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "invalid_event" {
		t.Fatalf("error = %v, want invalid_event", body["error"])
	}
}

func TestRecordEventBatchCap(t *testing.T) {
	h := newAPIHarness(t)

	batch := func(n int) []map[string]any {
		events := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			events = append(events, map[string]any{
				"user_id":    fmt.Sprintf("user-%d", i),
				"event_type": "click",
			})
		}
		return events
	}

	rec := h.do(t, http.MethodPost, "/v1/events/batch", map[string]any{"events": batch(1000)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch of 1000 status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["recorded"] != float64(1000) {
		t.Fatalf("recorded = %v, want 1000", body["recorded"])
	}

	rec = h.do(t, http.MethodPost, "/v1/events/batch", map[string]any{"events": batch(1001)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("batch of 1001 status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "batch_too_large" {
		t.Fatalf("error = %v, want batch_too_large", body["error"])
	}
}

func TestRecordEventBatchRequiresEvents(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/events/batch", map[string]any{"events": []map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "events_required" {
		t.Fatalf("error = %v, want events_required", body["error"])
	}
}

func TestGetResultsSummary(t *testing.T) {
	h := newAPIHarness(t)
	experiment := seedRunningExperiment(h, "exp-results")

	assignedAt := experiment.StartedAt.Add(time.Hour)
	for i := 0; i < 10; i++ {
		variant := experiment.Variants[i%2]
		userID := fmt.Sprintf("user-%d", i)
		h.assignments.items = append(h.assignments.items, domain.Assignment{
			ID:           fmt.Sprintf("asg-%d", i),
			ExperimentID: experiment.ID,
			VariantID:    variant.ID,
			UserID:       userID,
			AssignedAt:   assignedAt,
		})
		if i < 4 {
			h.events.items = append(h.events.items, domain.Event{
				ID:        fmt.Sprintf("evt-%d", i),
				UserID:    userID,
				Type:      "purchase",
				Timestamp: assignedAt.Add(time.Minute),
				CreatedAt: assignedAt.Add(time.Minute),
			})
		}
	}

	rec := h.do(t, http.MethodGet, "/v1/experiments/exp-results/results?format=summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	summary, _ := body["summary"].(map[string]any)
	if summary == nil {
		t.Fatalf("response has no summary: %v", body)
	}
	if summary["total_assignments"] != float64(10) {
		t.Fatalf("total_assignments = %v, want 10", summary["total_assignments"])
	}
	if summary["total_events"] != float64(4) {
		t.Fatalf("total_events = %v, want 4", summary["total_events"])
	}
	if _, ok := body["variants"]; ok {
		t.Fatal("summary format must not include per-variant metrics")
	}

	rec = h.do(t, http.MethodGet, "/v1/experiments/exp-results/results?include_time_series=true&granularity=day", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("full status = %d, want 200", rec.Code)
	}
	body = decodeBody(t, rec)
	if _, ok := body["variants"]; !ok {
		t.Fatal("full format missing variants")
	}
	if _, ok := body["time_series"]; !ok {
		t.Fatal("full format with include_time_series missing time_series")
	}
}

func TestGetResultsValidatesOptions(t *testing.T) {
	h := newAPIHarness(t)
	seedRunningExperiment(h, "exp-bad-opts")

	rec := h.do(t, http.MethodGet, "/v1/experiments/exp-bad-opts/results?format=detailed", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "invalid_query" {
		t.Fatalf("error = %v, want invalid_query", body["error"])
	}
	if issues, _ := body["issues"].([]any); len(issues) == 0 {
		t.Fatal("expected validation issues in response")
	}
}

func TestExportExperiment(t *testing.T) {
	h := newAPIHarness(t)
	experiment := seedRunningExperiment(h, "exp-export")
	h.assignments.items = append(h.assignments.items, domain.Assignment{
		ID:           "asg-1",
		ExperimentID: experiment.ID,
		VariantID:    experiment.Variants[0].ID,
		UserID:       "user-1",
		AssignedAt:   experiment.StartedAt.Add(time.Hour),
	})

	rec := h.do(t, http.MethodPost, "/v1/experiments/exp-export/export", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	key, _ := body["object_key"].(string)
	if !strings.HasPrefix(key, "experiments/exp-export/") {
		t.Fatalf("object_key = %q", key)
	}
	if key != h.uploader.key {
		t.Fatalf("receipt key %q does not match uploaded key %q", key, h.uploader.key)
	}
	if h.uploader.contentType != "application/x-ndjson" {
		t.Fatalf("content type = %q", h.uploader.contentType)
	}
	if body["records"] != float64(3) {
		t.Fatalf("records = %v, want 3", body["records"])
	}
	if h.metrics.exports != 1 {
		t.Fatalf("exports metric = %d, want 1", h.metrics.exports)
	}
}

func TestDeleteExperiment(t *testing.T) {
	h := newAPIHarness(t)
	experiment := seedRunningExperiment(h, "exp-del")
	experiment.Status = domain.StatusDraft
	experiment.StartedAt = nil
	h.experiments.put(experiment)

	rec := h.do(t, http.MethodDelete, "/v1/experiments/exp-del", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	rec = h.do(t, http.MethodGet, "/v1/experiments/exp-del", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestDeleteExperimentRejectsNonDraft(t *testing.T) {
	h := newAPIHarness(t)
	seedRunningExperiment(h, "exp-del-running")

	rec := h.do(t, http.MethodDelete, "/v1/experiments/exp-del-running", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("delete status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["error"] != "experiment_not_draft" || body["status"] != "running" {
		t.Fatalf("unexpected conflict body: %v", body)
	}

	rec = h.do(t, http.MethodGet, "/v1/experiments/exp-del-running", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("experiment was deleted despite running status")
	}
}
