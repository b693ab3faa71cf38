package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/platform/auth"
	"github.com/variant-labs/variant-go/internal/repo"
)

type variantResponse struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	TrafficAllocation float64        `json:"traffic_allocation"`
	Config            map[string]any `json:"config,omitempty"`
}

type experimentResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	EndedAt     *time.Time        `json:"ended_at,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Variants    []variantResponse `json:"variants"`
}

func experimentToResponse(experiment domain.Experiment) experimentResponse {
	variants := make([]variantResponse, 0, len(experiment.Variants))
	for _, v := range experiment.Variants {
		variants = append(variants, variantResponse{
			ID:                v.ID,
			Name:              v.Name,
			Description:       v.Description,
			TrafficAllocation: v.TrafficAllocation,
			Config:            v.Config,
		})
	}
	return experimentResponse{
		ID:          experiment.ID,
		Name:        experiment.Name,
		Description: experiment.Description,
		Status:      string(experiment.Status),
		CreatedAt:   experiment.CreatedAt,
		UpdatedAt:   experiment.UpdatedAt,
		StartedAt:   experiment.StartedAt,
		EndedAt:     experiment.EndedAt,
		CreatedBy:   experiment.CreatedBy,
		Variants:    variants,
	}
}

type createVariantRequest struct {
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	TrafficAllocation float64        `json:"traffic_allocation"`
	Config            map[string]any `json:"config,omitempty"`
}

type createExperimentRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Variants    []createVariantRequest `json:"variants"`
}

func (api *experimentsAPI) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	createdBy := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		createdBy = identity.Subject
	}

	now := api.now()
	experimentID := api.newID()
	variants := make([]domain.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		variants = append(variants, domain.Variant{
			ID:                api.newID(),
			ExperimentID:      experimentID,
			Name:              strings.TrimSpace(v.Name),
			Description:       strings.TrimSpace(v.Description),
			TrafficAllocation: v.TrafficAllocation,
			Config:            metadataOrEmpty(v.Config),
			CreatedAt:         now,
		})
	}

	experiment := domain.Experiment{
		ID:          experimentID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Status:      domain.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
		Variants:    variants,
	}
	if err := experiment.Validate(); err != nil {
		api.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "invalid_experiment",
			"detail":     err.Error(),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	if err := api.experiments.Create(r.Context(), experiment); err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/experiments/"+experimentID)
	api.writeJSON(w, http.StatusCreated, experimentToResponse(experiment))
}

func (api *experimentsAPI) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)
	offset := parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	filter := repo.ExperimentFilter{Limit: limit, Offset: offset}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.NormalizeStatus(raw)
		if status == "" {
			api.writeError(w, r, http.StatusBadRequest, "invalid_status")
			return
		}
		filter.Status = status
	}

	experiments, total, err := api.experiments.List(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	out := make([]experimentResponse, 0, len(experiments))
	for _, experiment := range experiments {
		out = append(out, experimentToResponse(experiment))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"experiments": out,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (api *experimentsAPI) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	experiment, err := api.experiments.Get(r.Context(), r.PathValue("experiment_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, experimentToResponse(experiment))
}

type updateExperimentRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (api *experimentsAPI) handleUpdateExperiment(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")

	var req updateExperimentRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == nil && req.Description == nil {
		api.writeError(w, r, http.StatusBadRequest, "no_fields")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		api.writeError(w, r, http.StatusBadRequest, "name_required")
		return
	}

	if err := api.experiments.UpdateDetails(r.Context(), experimentID, req.Name, req.Description); err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	experiment, err := api.experiments.Get(r.Context(), experimentID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, experimentToResponse(experiment))
}

// handleDeleteExperiment removes a draft experiment. Anything past draft has
// accumulated assignments and must be completed instead of deleted.
func (api *experimentsAPI) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")

	experiment, err := api.experiments.Get(r.Context(), experimentID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if experiment.Status != domain.StatusDraft {
		api.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "experiment_not_draft",
			"status":     string(experiment.Status),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	if err := api.experiments.Delete(r.Context(), experimentID); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (api *experimentsAPI) handleUpdateExperimentStatus(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	target := domain.NormalizeStatus(req.Status)
	if target == "" {
		api.writeError(w, r, http.StatusBadRequest, "invalid_status")
		return
	}

	experiment, err := api.experiments.Get(r.Context(), experimentID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if !domain.CanTransitionStatus(experiment.Status, target) {
		api.writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "invalid_transition",
			"from":       string(experiment.Status),
			"to":         string(target),
			"request_id": r.Header.Get("X-Request-Id"),
		})
		return
	}

	now := api.now()
	var startedAt, endedAt *time.Time
	if target == domain.StatusRunning && experiment.StartedAt == nil {
		startedAt = &now
	}
	if target == domain.StatusCompleted {
		endedAt = &now
	}

	if err := api.experiments.UpdateStatus(r.Context(), experimentID, target, startedAt, endedAt); err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	updated, err := api.experiments.Get(r.Context(), experimentID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, experimentToResponse(updated))
}
