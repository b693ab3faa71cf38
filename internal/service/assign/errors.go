package assign

import (
	"errors"
	"fmt"

	"github.com/variant-labs/variant-go/internal/domain"
)

// ErrNoVariantForBucket reports that the user's bucket fell into the
// unallocated tail of an experiment whose variant allocations sum to less
// than 100.
var ErrNoVariantForBucket = errors.New("no variant allocated for bucket")

// ErrNoVariants reports an experiment with no configured variants.
var ErrNoVariants = errors.New("experiment has no variants")

// InvalidStateError reports an assignment attempt against an experiment
// that is not running. It names the current status so callers can tell the
// user which precondition failed.
type InvalidStateError struct {
	ExperimentID string
	Status       domain.ExperimentStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("experiment %s is not running (status: %s)", e.ExperimentID, e.Status)
}
