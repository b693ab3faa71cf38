package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

// Metrics receives resolution outcomes. Implementations must be safe for
// concurrent use; a nil Metrics disables instrumentation.
type Metrics interface {
	AssignmentResolved(experimentID string, isNew bool)
	ConflictRecovered(experimentID string)
}

// Service resolves users to variants. All correctness under concurrent
// first-requests comes from the storage layer's (experiment_id, user_id)
// uniqueness constraint: the service computes first, persists second, and
// reconciles on conflict by re-reading the winning row. It takes no locks.
type Service struct {
	experiments repo.ExperimentRepository
	assignments repo.AssignmentRepository
	metrics     Metrics
	now         func() time.Time
	newID       func() string
}

// Resolution is the outcome of a resolve call. IsNew is true only for the
// single request that created the stored row.
type Resolution struct {
	Assignment domain.Assignment
	Variant    domain.Variant
	Experiment domain.Experiment
	IsNew      bool
}

func New(experimentRepo repo.ExperimentRepository, assignmentRepo repo.AssignmentRepository, metrics Metrics) *Service {
	if experimentRepo == nil || assignmentRepo == nil {
		return nil
	}
	return &Service{
		experiments: experimentRepo,
		assignments: assignmentRepo,
		metrics:     metrics,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// Resolve returns the user's variant for an experiment, creating the
// assignment on first sight.
//
// Repeated calls for the same (experiment, user) return the identical
// variant regardless of interleaving: the bucket is a pure function of the
// pair, so concurrent first-requests compute the same intended variant and
// the uniqueness constraint merely decides which one's insert sticks.
func (s *Service) Resolve(ctx context.Context, experimentID, userID string, assignContext domain.Metadata) (Resolution, error) {
	if s == nil {
		return Resolution{}, errors.New("assign service not initialized")
	}

	experiment, err := s.experiments.Get(ctx, experimentID)
	if err != nil {
		return Resolution{}, err
	}

	// Idempotency fast path: an existing row always wins, even when the
	// experiment has since been paused or completed.
	existing, err := s.assignments.Get(ctx, experimentID, userID)
	if err == nil {
		return s.resolutionFor(experiment, existing, false)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return Resolution{}, err
	}

	if experiment.Status != domain.StatusRunning {
		return Resolution{}, &InvalidStateError{ExperimentID: experimentID, Status: experiment.Status}
	}
	if len(experiment.Variants) == 0 {
		return Resolution{}, ErrNoVariants
	}

	bucket := Bucket(experimentID, userID)
	allocations := make([]float64, len(experiment.Variants))
	for i, v := range experiment.Variants {
		allocations[i] = v.TrafficAllocation
	}
	idx, ok := VariantForBucket(allocations, bucket)
	if !ok {
		return Resolution{}, fmt.Errorf("bucket %d for experiment %s: %w", bucket, experimentID, ErrNoVariantForBucket)
	}
	variant := experiment.Variants[idx]

	assignment := domain.Assignment{
		ID:           s.newID(),
		ExperimentID: experimentID,
		VariantID:    variant.ID,
		UserID:       userID,
		AssignedAt:   s.now(),
		Context:      assignContext.Clone(),
	}

	err = s.assignments.Insert(ctx, assignment)
	if err == nil {
		if s.metrics != nil {
			s.metrics.AssignmentResolved(experimentID, true)
		}
		return Resolution{Assignment: assignment, Variant: variant, Experiment: experiment, IsNew: true}, nil
	}
	if !errors.Is(err, repo.ErrConflict) {
		return Resolution{}, err
	}

	// A concurrent request won the insert race. Both requests computed the
	// same bucket, hence the same variant; re-read and return the stored row.
	if s.metrics != nil {
		s.metrics.ConflictRecovered(experimentID)
	}
	winner, err := s.assignments.Get(ctx, experimentID, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("re-read after conflict: %w", err)
	}
	return s.resolutionFor(experiment, winner, false)
}

func (s *Service) resolutionFor(experiment domain.Experiment, assignment domain.Assignment, isNew bool) (Resolution, error) {
	for _, v := range experiment.Variants {
		if v.ID == assignment.VariantID {
			if s.metrics != nil {
				s.metrics.AssignmentResolved(experiment.ID, isNew)
			}
			return Resolution{Assignment: assignment, Variant: v, Experiment: experiment, IsNew: isNew}, nil
		}
	}
	return Resolution{}, fmt.Errorf("assignment %s references unknown variant %s: %w", assignment.ID, assignment.VariantID, repo.ErrNotFound)
}
