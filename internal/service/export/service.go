package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/variant-labs/variant-go/internal/repo"
	"github.com/variant-labs/variant-go/internal/service/results"
)

// Uploader stores a finished bundle under a key. The MinIO adapter is the
// production implementation; tests swap in an in-memory one.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, payload []byte) error
}

// Receipt describes where an export landed and how big it is.
type Receipt struct {
	ObjectKey   string
	Records     int
	SizeBytes   int64
	GeneratedAt time.Time
}

// Service assembles experiment export bundles and pushes them to the
// object store. Bundles hold the experiment, its assignments, the raw
// events of its assigned users, and a freshly computed result set.
type Service struct {
	experiments repo.ExperimentRepository
	assignments repo.AssignmentRepository
	events      repo.EventRepository
	results     *results.Service
	uploader    Uploader

	now func() time.Time
}

func New(experiments repo.ExperimentRepository, assignments repo.AssignmentRepository, events repo.EventRepository, resultsSvc *results.Service, uploader Uploader) *Service {
	return &Service{
		experiments: experiments,
		assignments: assignments,
		events:      events,
		results:     resultsSvc,
		uploader:    uploader,
		now:         time.Now,
	}
}

const exportPageSize = 1000

// Export writes one NDJSON bundle for the experiment and uploads it. The
// object key is derived from the experiment and the export time, so repeated
// exports never overwrite each other.
func (s *Service) Export(ctx context.Context, experimentID string, opts results.Options) (Receipt, error) {
	experiment, err := s.experiments.Get(ctx, experimentID)
	if err != nil {
		return Receipt{}, fmt.Errorf("get experiment: %w", err)
	}

	set, err := s.results.Compute(ctx, experimentID, opts)
	if err != nil {
		return Receipt{}, fmt.Errorf("compute results: %w", err)
	}

	var buf bytes.Buffer
	bundle := NewBundleWriter(&buf)
	if err := bundle.WriteExperiment(experiment); err != nil {
		return Receipt{}, fmt.Errorf("write experiment record: %w", err)
	}

	userIDs, err := s.writeAssignments(ctx, bundle, experiment.ID)
	if err != nil {
		return Receipt{}, err
	}
	if err := s.writeEvents(ctx, bundle, userIDs); err != nil {
		return Receipt{}, err
	}
	if err := bundle.WriteResults(set); err != nil {
		return Receipt{}, fmt.Errorf("write results record: %w", err)
	}

	generatedAt := s.now().UTC()
	key := objectKey(experiment.ID, generatedAt)
	if err := s.uploader.Upload(ctx, key, "application/x-ndjson", buf.Bytes()); err != nil {
		return Receipt{}, fmt.Errorf("upload bundle: %w", err)
	}

	return Receipt{
		ObjectKey:   key,
		Records:     bundle.Lines(),
		SizeBytes:   int64(buf.Len()),
		GeneratedAt: generatedAt,
	}, nil
}

func (s *Service) writeAssignments(ctx context.Context, bundle *BundleWriter, experimentID string) ([]string, error) {
	var userIDs []string
	offset := 0
	for {
		page, total, err := s.assignments.ListByExperiment(ctx, experimentID, repo.AssignmentFilter{
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		for _, assignment := range page {
			if err := bundle.WriteAssignment(assignment); err != nil {
				return nil, fmt.Errorf("write assignment record: %w", err)
			}
			userIDs = append(userIDs, assignment.UserID)
		}
		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			return userIDs, nil
		}
	}
}

func (s *Service) writeEvents(ctx context.Context, bundle *BundleWriter, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	events, err := s.events.ListForUsers(ctx, userIDs, nil, nil, nil)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	for _, event := range events {
		if err := bundle.WriteEvent(event); err != nil {
			return fmt.Errorf("write event record: %w", err)
		}
	}
	return nil
}

func objectKey(experimentID string, generatedAt time.Time) string {
	return fmt.Sprintf("experiments/%s/%s.ndjson", experimentID, generatedAt.Format("20060102T150405Z"))
}
