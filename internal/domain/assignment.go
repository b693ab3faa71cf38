package domain

import (
	"errors"
	"strings"
	"time"
)

// Assignment is the durable record binding a user to a variant for an
// experiment. At most one row exists per (experiment, user); the pair is a
// database uniqueness constraint, and rows are immutable once written.
type Assignment struct {
	ID           string
	ExperimentID string
	VariantID    string
	UserID       string
	AssignedAt   time.Time
	Context      Metadata
}

func (a Assignment) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("assignment id is required")
	}
	if strings.TrimSpace(a.ExperimentID) == "" {
		return errors.New("assignment experiment id is required")
	}
	if strings.TrimSpace(a.VariantID) == "" {
		return errors.New("assignment variant id is required")
	}
	if strings.TrimSpace(a.UserID) == "" {
		return errors.New("assignment user id is required")
	}
	return nil
}
