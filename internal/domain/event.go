package domain

import (
	"errors"
	"strings"
	"time"
)

// Event is a recorded user action. Events belong to users, not experiments;
// attribution to an experiment happens at query time so one event can count
// toward every experiment the user is assigned to.
type Event struct {
	ID         string
	UserID     string
	Type       string
	Timestamp  time.Time
	Properties Metadata
	CreatedAt  time.Time
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("event id is required")
	}
	if strings.TrimSpace(e.UserID) == "" {
		return errors.New("event user id is required")
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("event type is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("event timestamp is required")
	}
	return nil
}
