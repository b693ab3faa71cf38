package main

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/variant-labs/variant-go/internal/service/results"
)

type exportRequest struct {
	Format     string     `json:"format,omitempty"`
	EventTypes []string   `json:"event_types,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

type exportResponse struct {
	ObjectKey   string    `json:"object_key"`
	Records     int       `json:"records"`
	SizeBytes   int64     `json:"size_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (api *experimentsAPI) handleExportExperiment(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")

	var req exportRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	opts := results.Options{
		Format:     req.Format,
		EventTypes: req.EventTypes,
		Start:      req.StartDate,
		End:        req.EndDate,
	}

	receipt, err := api.export.Export(r.Context(), experimentID, opts)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.metrics.ExportCompleted()

	api.writeJSON(w, http.StatusCreated, exportResponse{
		ObjectKey:   receipt.ObjectKey,
		Records:     receipt.Records,
		SizeBytes:   receipt.SizeBytes,
		GeneratedAt: receipt.GeneratedAt,
	})
}
