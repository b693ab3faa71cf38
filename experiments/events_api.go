package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

type eventResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	EventType  string         `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func eventToResponse(event domain.Event) eventResponse {
	return eventResponse{
		ID:         event.ID,
		UserID:     event.UserID,
		EventType:  event.Type,
		Timestamp:  event.Timestamp,
		Properties: event.Properties,
		CreatedAt:  event.CreatedAt,
	}
}

type recordEventRequest struct {
	UserID     string         `json:"user_id"`
	EventType  string         `json:"event_type"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (api *experimentsAPI) eventFromRequest(req recordEventRequest) (domain.Event, bool) {
	now := api.now()
	timestamp := now
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}
	event := domain.Event{
		ID:         api.newID(),
		UserID:     strings.TrimSpace(req.UserID),
		Type:       strings.TrimSpace(req.EventType),
		Timestamp:  timestamp,
		Properties: metadataOrEmpty(req.Properties),
		CreatedAt:  now,
	}
	return event, event.Validate() == nil
}

func (api *experimentsAPI) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	event, ok := api.eventFromRequest(req)
	if !ok {
		api.writeError(w, r, http.StatusBadRequest, "invalid_event")
		return
	}

	if err := api.events.Insert(r.Context(), event); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.metrics.EventRecorded(event.Type)
	api.writeJSON(w, http.StatusCreated, eventToResponse(event))
}

type recordEventBatchRequest struct {
	Events []recordEventRequest `json:"events"`
}

const maxEventBatch = 1000

func (api *experimentsAPI) handleRecordEventBatch(w http.ResponseWriter, r *http.Request) {
	var req recordEventBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Events) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "events_required")
		return
	}
	if len(req.Events) > maxEventBatch {
		api.writeError(w, r, http.StatusBadRequest, "batch_too_large")
		return
	}

	events := make([]domain.Event, 0, len(req.Events))
	for _, item := range req.Events {
		event, ok := api.eventFromRequest(item)
		if !ok {
			api.writeError(w, r, http.StatusBadRequest, "invalid_event")
			return
		}
		events = append(events, event)
	}

	if err := api.events.InsertBatch(r.Context(), events); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	for _, event := range events {
		api.metrics.EventRecorded(event.Type)
	}

	out := make([]eventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, eventToResponse(event))
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{
		"events":   out,
		"recorded": len(out),
	})
}

func (api *experimentsAPI) handleListEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseTimeQuery(r, "since")
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_since")
		return
	}
	until, err := parseTimeQuery(r, "until")
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_until")
		return
	}

	filter := repo.EventFilter{
		UserID: strings.TrimSpace(r.URL.Query().Get("user_id")),
		Type:   strings.TrimSpace(r.URL.Query().Get("event_type")),
		Since:  since,
		Until:  until,
		Limit:  clampInt(parseIntQuery(r, "limit", 100), 1, 1000),
		Offset: parseIntQuery(r, "offset", 0),
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	events, total, err := api.events.List(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, eventToResponse(event))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (api *experimentsAPI) handleListEventTypes(w http.ResponseWriter, r *http.Request) {
	types, err := api.events.DistinctTypes(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]any{
			"event_type": t.Type,
			"count":      t.Count,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"event_types": out})
}
