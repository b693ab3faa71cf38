package main

import (
	"net/http"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/service/results"
)

type variantMetricsResponse struct {
	VariantID         string           `json:"variant_id"`
	VariantName       string           `json:"variant_name"`
	TotalAssignments  int64            `json:"total_assignments"`
	TotalEvents       int64            `json:"total_events"`
	ConvertedUsers    int64            `json:"converted_users"`
	ConversionRate    float64          `json:"conversion_rate"`
	EventsPerUser     float64          `json:"events_per_user"`
	EventsByType      map[string]int64 `json:"events_by_type,omitempty"`
	Lift              *float64         `json:"lift,omitempty"`
	TrafficAllocation float64          `json:"traffic_allocation"`
}

type summaryResponse struct {
	TotalAssignments      int64   `json:"total_assignments"`
	TotalEvents           int64   `json:"total_events"`
	OverallConversionRate float64 `json:"overall_conversion_rate"`
	LeadingVariant        *string `json:"leading_variant,omitempty"`
	BaselineVariant       string  `json:"baseline_variant"`
	Confidence            string  `json:"confidence"`
}

type timeSeriesPointResponse struct {
	Timestamp   time.Time `json:"timestamp"`
	VariantID   string    `json:"variant_id"`
	VariantName string    `json:"variant_name"`
	Assignments int64     `json:"assignments"`
	Events      int64     `json:"events"`
	Conversions int64     `json:"conversions"`
}

type resultSetResponse struct {
	ExperimentID   string                    `json:"experiment_id"`
	ExperimentName string                    `json:"experiment_name"`
	Status         string                    `json:"status"`
	AnalysisStart  time.Time                 `json:"analysis_start"`
	AnalysisEnd    time.Time                 `json:"analysis_end"`
	Summary        summaryResponse           `json:"summary"`
	Variants       []variantMetricsResponse  `json:"variants,omitempty"`
	EventsByType   map[string]int64          `json:"events_by_type,omitempty"`
	TimeSeries     []timeSeriesPointResponse `json:"time_series,omitempty"`
}

func resultSetToResponse(set domain.ResultSet) resultSetResponse {
	resp := resultSetResponse{
		ExperimentID:   set.ExperimentID,
		ExperimentName: set.ExperimentName,
		Status:         string(set.Status),
		AnalysisStart:  set.AnalysisStart,
		AnalysisEnd:    set.AnalysisEnd,
		Summary: summaryResponse{
			TotalAssignments:      set.Summary.TotalAssignments,
			TotalEvents:           set.Summary.TotalEvents,
			OverallConversionRate: set.Summary.OverallConversionRate,
			LeadingVariant:        set.Summary.LeadingVariant,
			BaselineVariant:       set.Summary.BaselineVariant,
			Confidence:            string(set.Summary.Confidence),
		},
		EventsByType: set.EventsByType,
	}
	for _, metrics := range set.Variants {
		resp.Variants = append(resp.Variants, variantMetricsResponse{
			VariantID:         metrics.VariantID,
			VariantName:       metrics.VariantName,
			TotalAssignments:  metrics.TotalAssignments,
			TotalEvents:       metrics.TotalEvents,
			ConvertedUsers:    metrics.ConvertedUsers,
			ConversionRate:    metrics.ConversionRate,
			EventsPerUser:     metrics.EventsPerUser,
			EventsByType:      metrics.EventsByType,
			Lift:              metrics.Lift,
			TrafficAllocation: metrics.TrafficAllocation,
		})
	}
	for _, point := range set.TimeSeries {
		resp.TimeSeries = append(resp.TimeSeries, timeSeriesPointResponse{
			Timestamp:   point.Timestamp,
			VariantID:   point.VariantID,
			VariantName: point.VariantName,
			Assignments: point.Assignments,
			Events:      point.Events,
			Conversions: point.Conversions,
		})
	}
	return resp
}

func (api *experimentsAPI) handleGetResults(w http.ResponseWriter, r *http.Request) {
	experimentID := r.PathValue("experiment_id")

	start, err := parseTimeQuery(r, "start_date")
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_start_date")
		return
	}
	end, err := parseTimeQuery(r, "end_date")
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_end_date")
		return
	}

	opts := results.Options{
		Format:            r.URL.Query().Get("format"),
		EventTypes:        parseCSVQuery(r, "event_types"),
		Start:             start,
		End:               end,
		IncludeTimeSeries: parseBoolQuery(r, "include_time_series"),
		Granularity:       r.URL.Query().Get("granularity"),
	}

	set, err := api.results.Compute(r.Context(), experimentID, opts)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, resultSetToResponse(set))
}
