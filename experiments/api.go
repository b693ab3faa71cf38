package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
	"github.com/variant-labs/variant-go/internal/service/assign"
	"github.com/variant-labs/variant-go/internal/service/export"
	"github.com/variant-labs/variant-go/internal/service/results"
)

type eventMetrics interface {
	EventRecorded(eventType string)
	ExportCompleted()
}

type apiDeps struct {
	logger      *slog.Logger
	experiments repo.ExperimentRepository
	assignments repo.AssignmentRepository
	events      repo.EventRepository
	assign      *assign.Service
	results     *results.Service
	export      *export.Service
	metrics     eventMetrics
}

type experimentsAPI struct {
	logger      *slog.Logger
	experiments repo.ExperimentRepository
	assignments repo.AssignmentRepository
	events      repo.EventRepository
	assign      *assign.Service
	results     *results.Service
	export      *export.Service
	metrics     eventMetrics

	now   func() time.Time
	newID func() string
}

func newExperimentsAPI(deps apiDeps) *experimentsAPI {
	return &experimentsAPI{
		logger:      deps.logger,
		experiments: deps.experiments,
		assignments: deps.assignments,
		events:      deps.events,
		assign:      deps.assign,
		results:     deps.results,
		export:      deps.export,
		metrics:     deps.metrics,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

func (api *experimentsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/experiments", api.handleCreateExperiment)
	mux.HandleFunc("GET /v1/experiments", api.handleListExperiments)
	mux.HandleFunc("GET /v1/experiments/{experiment_id}", api.handleGetExperiment)
	mux.HandleFunc("PATCH /v1/experiments/{experiment_id}", api.handleUpdateExperiment)
	mux.HandleFunc("DELETE /v1/experiments/{experiment_id}", api.handleDeleteExperiment)
	mux.HandleFunc("POST /v1/experiments/{experiment_id}/status", api.handleUpdateExperimentStatus)

	mux.HandleFunc("POST /v1/experiments/{experiment_id}/assignments", api.handleResolveAssignment)
	mux.HandleFunc("GET /v1/experiments/{experiment_id}/assignments", api.handleListAssignments)
	mux.HandleFunc("GET /v1/experiments/{experiment_id}/assignments/{user_id}", api.handleGetAssignment)

	mux.HandleFunc("POST /v1/events", api.handleRecordEvent)
	mux.HandleFunc("POST /v1/events/batch", api.handleRecordEventBatch)
	mux.HandleFunc("GET /v1/events", api.handleListEvents)
	mux.HandleFunc("GET /v1/events/types", api.handleListEventTypes)

	mux.HandleFunc("GET /v1/experiments/{experiment_id}/results", api.handleGetResults)
	mux.HandleFunc("POST /v1/experiments/{experiment_id}/export", api.handleExportExperiment)
}

// writeServiceError maps domain and service errors onto the HTTP surface.
// Unknown errors are logged and surfaced as opaque 500s.
func (api *experimentsAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidState *assign.InvalidStateError
	var optionsErr *results.ValidationError

	switch {
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	case errors.As(err, &invalidState):
		api.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "experiment_not_running",
			"status":     string(invalidState.Status),
			"request_id": r.Header.Get("X-Request-Id"),
		})
	case errors.Is(err, assign.ErrNoVariantForBucket), errors.Is(err, assign.ErrNoVariants):
		api.writeError(w, r, http.StatusUnprocessableEntity, "no_variant_for_bucket")
	case errors.As(err, &optionsErr):
		api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_query",
			"issues":     optionsErr.Issues,
			"request_id": r.Header.Get("X-Request-Id"),
		})
	case errors.Is(err, repo.ErrConflict):
		api.writeError(w, r, http.StatusConflict, "conflict")
	default:
		api.logger.Error("request failed", "request_id", r.Header.Get("X-Request-Id"),
			"method", r.Method, "path", r.URL.Path, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *experimentsAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *experimentsAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseTimeQuery(r *http.Request, key string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

func parseCSVQuery(r *http.Request, key string) []string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBoolQuery(r *http.Request, key string) bool {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func metadataOrEmpty(m map[string]any) domain.Metadata {
	if m == nil {
		return domain.Metadata{}
	}
	return domain.Metadata(m)
}
