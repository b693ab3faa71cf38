package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

// NormalizeStatus maps a raw status string to a known ExperimentStatus,
// returning "" for unknown values.
func NormalizeStatus(raw string) ExperimentStatus {
	switch ExperimentStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusDraft:
		return StatusDraft
	case StatusRunning:
		return StatusRunning
	case StatusPaused:
		return StatusPaused
	case StatusCompleted:
		return StatusCompleted
	default:
		return ""
	}
}

// CanTransitionStatus reports whether a lifecycle transition is allowed.
// Completed is terminal.
func CanTransitionStatus(from, to ExperimentStatus) bool {
	switch from {
	case StatusDraft:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusPaused || to == StatusCompleted
	case StatusPaused:
		return to == StatusRunning || to == StatusCompleted
	default:
		return false
	}
}

// Experiment is one A/B test with its ordered variant arms. Variants are
// ordered by creation; that order is the contract for bucket-range walking
// and for the lift baseline (first variant).
type Experiment struct {
	ID          string
	Name        string
	Description string
	Status      ExperimentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	CreatedBy   string
	Variants    []Variant
}

// Variant is one arm of an experiment with its own traffic share.
type Variant struct {
	ID                string
	ExperimentID      string
	Name              string
	Description       string
	TrafficAllocation float64
	Config            Metadata
	CreatedAt         time.Time
}

func (e Experiment) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("experiment id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("experiment name is required")
	}
	if NormalizeStatus(string(e.Status)) == "" {
		return fmt.Errorf("experiment status unsupported: %q", e.Status)
	}
	if len(e.Variants) < 2 {
		return errors.New("experiment requires at least 2 variants")
	}
	return ValidateVariants(e.Variants)
}

// ValidateVariants enforces unique names and a total allocation of at most
/// 100. A total below 100 is legal: the uncovered bucket range is unassigned
// traffic and resolution there fails explicitly.
func ValidateVariants(variants []Variant) error {
	seen := make(map[string]struct{}, len(variants))
	var total float64
	for i, v := range variants {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return fmt.Errorf("variants[%d].name is required", i)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("variants[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[key] = struct{}{}
		if v.TrafficAllocation < 0 || v.TrafficAllocation > 100 {
			return fmt.Errorf("variants[%d].traffic_allocation must be in [0,100]", i)
		}
		total += v.TrafficAllocation
	}
	if total > 100 {
		return fmt.Errorf("variant traffic allocations sum to %.2f, must be <= 100", total)
	}
	return nil
}

func (v Variant) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return errors.New("variant id is required")
	}
	if strings.TrimSpace(v.ExperimentID) == "" {
		return errors.New("variant experiment id is required")
	}
	if strings.TrimSpace(v.Name) == "" {
		return errors.New("variant name is required")
	}
	if v.TrafficAllocation < 0 || v.TrafficAllocation > 100 {
		return errors.New("variant traffic_allocation must be in [0,100]")
	}
	return nil
}
