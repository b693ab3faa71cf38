package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
)

// BundleWriter streams an experiment export as newline-delimited JSON.
// Every line is a record with a kind tag so consumers can demultiplex a
// bundle in a single pass.
type BundleWriter struct {
	enc   *json.Encoder
	lines int
}

func NewBundleWriter(w io.Writer) *BundleWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &BundleWriter{enc: enc}
}

func (b *BundleWriter) Lines() int { return b.lines }

func (b *BundleWriter) WriteExperiment(experiment domain.Experiment) error {
	return b.write(record{Kind: "experiment", Experiment: experimentFromDomain(experiment)})
}

func (b *BundleWriter) WriteAssignment(assignment domain.Assignment) error {
	return b.write(record{Kind: "assignment", Assignment: assignmentFromDomain(assignment)})
}

func (b *BundleWriter) WriteEvent(event domain.Event) error {
	return b.write(record{Kind: "event", Event: eventFromDomain(event)})
}

func (b *BundleWriter) WriteResults(set domain.ResultSet) error {
	return b.write(record{Kind: "results", Results: &set})
}

func (b *BundleWriter) write(rec record) error {
	if err := b.enc.Encode(rec); err != nil {
		return err
	}
	b.lines++
	return nil
}

type record struct {
	Kind       string            `json:"kind"`
	Experiment *exportExperiment `json:"experiment,omitempty"`
	Assignment *exportAssignment `json:"assignment,omitempty"`
	Event      *exportEvent      `json:"event,omitempty"`
	Results    *domain.ResultSet `json:"results,omitempty"`
}

type exportExperiment struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	StartedAt   string          `json:"started_at,omitempty"`
	EndedAt     string          `json:"ended_at,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	Variants    []exportVariant `json:"variants"`
}

type exportVariant struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	TrafficAllocation float64         `json:"traffic_allocation"`
	Config            json.RawMessage `json:"config,omitempty"`
}

type exportAssignment struct {
	ID         string          `json:"id"`
	VariantID  string          `json:"variant_id"`
	UserID     string          `json:"user_id"`
	AssignedAt string          `json:"assigned_at"`
	Context    json.RawMessage `json:"context,omitempty"`
}

type exportEvent struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Type       string          `json:"event_type"`
	Timestamp  string          `json:"timestamp"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

func experimentFromDomain(experiment domain.Experiment) *exportExperiment {
	variants := make([]exportVariant, 0, len(experiment.Variants))
	for _, v := range experiment.Variants {
		variants = append(variants, exportVariant{
			ID:                v.ID,
			Name:              v.Name,
			Description:       v.Description,
			TrafficAllocation: v.TrafficAllocation,
			Config:            rawMetadata(v.Config),
		})
	}
	return &exportExperiment{
		ID:          experiment.ID,
		Name:        experiment.Name,
		Description: experiment.Description,
		Status:      string(experiment.Status),
		CreatedAt:   formatTime(experiment.CreatedAt),
		StartedAt:   formatTimePtr(experiment.StartedAt),
		EndedAt:     formatTimePtr(experiment.EndedAt),
		CreatedBy:   experiment.CreatedBy,
		Variants:    variants,
	}
}

func assignmentFromDomain(assignment domain.Assignment) *exportAssignment {
	return &exportAssignment{
		ID:         assignment.ID,
		VariantID:  assignment.VariantID,
		UserID:     assignment.UserID,
		AssignedAt: formatTime(assignment.AssignedAt),
		Context:    rawMetadata(assignment.Context),
	}
}

func eventFromDomain(event domain.Event) *exportEvent {
	return &exportEvent{
		ID:         event.ID,
		UserID:     event.UserID,
		Type:       event.Type,
		Timestamp:  formatTime(event.Timestamp),
		Properties: rawMetadata(event.Properties),
	}
}

func rawMetadata(meta domain.Metadata) json.RawMessage {
	if len(meta) == 0 {
		return nil
	}
	payload, _ := json.Marshal(meta)
	return payload
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(timeFormatRFC3339Nano)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}

const timeFormatRFC3339Nano = "2006-01-02T15:04:05.999999999Z07:00"
