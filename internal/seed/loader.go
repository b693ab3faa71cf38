package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

// Loader applies declarative experiment definitions on boot. Matching is by
// case-insensitive name; existing experiments are never modified, so a spec
// edit only affects experiments created after it.
type Loader struct {
	experiments repo.ExperimentRepository
	logger      *slog.Logger

	newID func() string
	now   func() time.Time
}

func NewLoader(experiments repo.ExperimentRepository, logger *slog.Logger) *Loader {
	return &Loader{
		experiments: experiments,
		logger:      logger,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

func LoadFile(path string) (Spec, error) {
	input, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("read spec file: %w", err)
	}
	return ParseSpec(input)
}

const listPageSize = 200

// Apply creates every spec experiment that does not already exist. It
// returns the number created.
func (l *Loader) Apply(ctx context.Context, spec Spec) (int, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}

	existing, err := l.existingNames(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, experimentSpec := range spec.Experiments {
		key := strings.ToLower(strings.TrimSpace(experimentSpec.Name))
		if _, ok := existing[key]; ok {
			continue
		}

		experiment := l.experimentFromSpec(experimentSpec)
		if err := l.experiments.Create(ctx, experiment); err != nil {
			return created, fmt.Errorf("create experiment %q: %w", experimentSpec.Name, err)
		}
		existing[key] = struct{}{}
		created++
		if l.logger != nil {
			l.logger.Info("seeded experiment", "experiment_id", experiment.ID, "name", experiment.Name)
		}
	}
	return created, nil
}

func (l *Loader) existingNames(ctx context.Context) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	offset := 0
	for {
		page, total, err := l.experiments.List(ctx, repo.ExperimentFilter{Limit: listPageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list experiments: %w", err)
		}
		for _, experiment := range page {
			names[strings.ToLower(experiment.Name)] = struct{}{}
		}
		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			return names, nil
		}
	}
}

func (l *Loader) experimentFromSpec(spec ExperimentSpec) domain.Experiment {
	now := l.now().UTC()
	experimentID := l.newID()
	variants := make([]domain.Variant, 0, len(spec.Variants))
	for _, variantSpec := range spec.Variants {
		variants = append(variants, domain.Variant{
			ID:                l.newID(),
			ExperimentID:      experimentID,
			Name:              variantSpec.Name,
			Description:       variantSpec.Description,
			TrafficAllocation: variantSpec.TrafficAllocation,
			Config:            domain.Metadata(variantSpec.Config),
			CreatedAt:         now,
		})
	}
	createdBy := strings.TrimSpace(spec.CreatedBy)
	if createdBy == "" {
		createdBy = "seed"
	}
	return domain.Experiment{
		ID:          experimentID,
		Name:        strings.TrimSpace(spec.Name),
		Description: spec.Description,
		Status:      domain.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
		Variants:    variants,
	}
}
