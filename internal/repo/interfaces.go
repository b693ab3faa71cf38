package repo

import (
	"context"
	"errors"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
)

// ErrNotFound reports a missing row for a keyed lookup.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a uniqueness violation on insert. For assignments this
// is the signal that a concurrent request already created the row for the
// same (experiment, user) key.
var ErrConflict = errors.New("conflict")

type ExperimentFilter struct {
	Status domain.ExperimentStatus
	Limit  int
	Offset int
}

type AssignmentFilter struct {
	VariantID string
	Limit     int
	Offset    int
}

type EventFilter struct {
	UserID string
	Type   string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// EventTypeCount is a distinct event type with its total occurrence count.
type EventTypeCount struct {
	Type  string
	Count int64
}

// ExperimentRepository manages experiments together with their variants.
// Variants are always returned in creation order; callers depend on that
// order for bucket-range walking and baseline selection.
type ExperimentRepository interface {
	Create(ctx context.Context, experiment domain.Experiment) error
	Get(ctx context.Context, id string) (domain.Experiment, error)
	List(ctx context.Context, filter ExperimentFilter) ([]domain.Experiment, int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.ExperimentStatus, startedAt, endedAt *time.Time) error
	UpdateDetails(ctx context.Context, id string, name, description *string) error
	Delete(ctx context.Context, id string) error
}

// AssignmentRepository manages the immutable (experiment, user) -> variant
// records. Insert must surface ErrConflict when the uniqueness constraint
// fires so callers can re-read the winning row.
type AssignmentRepository interface {
	Get(ctx context.Context, experimentID, userID string) (domain.Assignment, error)
	Insert(ctx context.Context, assignment domain.Assignment) error
	ListByExperiment(ctx context.Context, experimentID string, filter AssignmentFilter) ([]domain.Assignment, int64, error)
	CountByVariant(ctx context.Context, experimentID string) (map[string]int64, error)
}

// EventRepository manages the append-only event stream.
type EventRepository interface {
	Insert(ctx context.Context, event domain.Event) error
	InsertBatch(ctx context.Context, events []domain.Event) error
	List(ctx context.Context, filter EventFilter) ([]domain.Event, int64, error)
	ListForUsers(ctx context.Context, userIDs []string, since, until *time.Time, types []string) ([]domain.Event, error)
	DistinctTypes(ctx context.Context) ([]EventTypeCount, error)
}
