package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

type assignmentResponse struct {
	ID           string         `json:"id"`
	ExperimentID string         `json:"experiment_id"`
	VariantID    string         `json:"variant_id"`
	VariantName  string         `json:"variant_name,omitempty"`
	UserID       string         `json:"user_id"`
	AssignedAt   time.Time      `json:"assigned_at"`
	Context      map[string]any `json:"context,omitempty"`
}

func assignmentToResponse(assignment domain.Assignment, variantName string) assignmentResponse {
	return assignmentResponse{
		ID:           assignment.ID,
		ExperimentID: assignment.ExperimentID,
		VariantID:    assignment.VariantID,
		VariantName:  variantName,
		UserID:       assignment.UserID,
		AssignedAt:   assignment.AssignedAt,
		Context:      assignment.Context,
	}
}

type resolveAssignmentRequest struct {
	UserID  string         `json:"user_id"`
	Context map[string]any `json:"context,omitempty"`
}

// handleResolveAssignment is the SDK hot path. The same (experiment, user)
// pair always resolves to the same variant; only the first call returns 201.
func (api *experimentsAPI) handleResolveAssignment(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")

	var req resolveAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		api.writeError(w, r, http.StatusBadRequest, "user_id_required")
		return
	}

	resolution, err := api.assign.Resolve(r.Context(), experimentID, userID, metadataOrEmpty(req.Context))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if resolution.IsNew {
		status = http.StatusCreated
	}
	response := assignmentToResponse(resolution.Assignment, resolution.Variant.Name)
	api.writeJSON(w, status, map[string]any{
		"assignment": response,
		"variant": variantResponse{
			ID:                resolution.Variant.ID,
			Name:              resolution.Variant.Name,
			Description:       resolution.Variant.Description,
			TrafficAllocation: resolution.Variant.TrafficAllocation,
			Config:            resolution.Variant.Config,
		},
		"is_new": resolution.IsNew,
	})
}

func (api *experimentsAPI) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")

	experiment, err := api.experiments.Get(r.Context(), experimentID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	variantNames := make(map[string]string, len(experiment.Variants))
	for _, v := range experiment.Variants {
		variantNames[v.ID] = v.Name
	}

	filter := repo.AssignmentFilter{
		VariantID: strings.TrimSpace(r.URL.Query().Get("variant_id")),
		Limit:     clampInt(parseIntQuery(r, "limit", 100), 1, 1000),
		Offset:    parseIntQuery(r, "offset", 0),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	assignments, total, err := api.assignments.ListByExperiment(r.Context(), experimentID, filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	out := make([]assignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		out = append(out, assignmentToResponse(assignment, variantNames[assignment.VariantID]))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"assignments": out,
		"total":       total,
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

func (api *experimentsAPI) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")
	userID := r.PathValue("user_id")

	assignment, err := api.assignments.Get(r.Context(), experimentID, userID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	variantName := ""
	if experiment, err := api.experiments.Get(r.Context(), experimentID); err == nil {
		for _, v := range experiment.Variants {
			if v.ID == assignment.VariantID {
				variantName = v.Name
				break
			}
		}
	}
	api.writeJSON(w, http.StatusOK, assignmentToResponse(assignment, variantName))
}
