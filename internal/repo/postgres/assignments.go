package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

// AssignmentStore persists (experiment, user) -> variant records. The
// uq_assignments_experiment_user constraint is what makes concurrent first
// resolutions safe; Insert surfaces it as repo.ErrConflict.
type AssignmentStore struct {
	db DB
}

func NewAssignmentStore(db DB) *AssignmentStore {
	if db == nil {
		return nil
	}
	return &AssignmentStore{db: db}
}

func (s *AssignmentStore) Get(ctx context.Context, experimentID, userID string) (domain.Assignment, error) {
	if s == nil || s.db == nil {
		return domain.Assignment{}, fmt.Errorf("assignment store not initialized")
	}
	var (
		assignment  domain.Assignment
		contextJSON []byte
	)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT assignment_id, experiment_id, variant_id, user_id, assigned_at, context
		 FROM assignments
		 WHERE experiment_id = $1 AND user_id = $2`,
		strings.TrimSpace(experimentID),
		strings.TrimSpace(userID),
	)
	if err := row.Scan(&assignment.ID, &assignment.ExperimentID, &assignment.VariantID, &assignment.UserID, &assignment.AssignedAt, &contextJSON); err != nil {
		return domain.Assignment{}, handleNotFound(err)
	}
	meta, err := decodeMetadata(contextJSON)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("decode assignment context: %w", err)
	}
	assignment.Context = meta
	return assignment, nil
}

func (s *AssignmentStore) Insert(ctx context.Context, assignment domain.Assignment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("assignment store not initialized")
	}
	if err := assignment.Validate(); err != nil {
		return err
	}
	contextJSON, err := encodeMetadata(assignment.Context)
	if err != nil {
		return fmt.Errorf("encode assignment context: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO assignments (
			assignment_id,
			experiment_id,
			variant_id,
			user_id,
			assigned_at,
			context
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(assignment.ID),
		strings.TrimSpace(assignment.ExperimentID),
		strings.TrimSpace(assignment.VariantID),
		strings.TrimSpace(assignment.UserID),
		normalizeTime(assignment.AssignedAt),
		contextJSON,
	)
	if err != nil {
		return handleInsertError(err)
	}
	return nil
}

func (s *AssignmentStore) ListByExperiment(ctx context.Context, experimentID string, filter repo.AssignmentFilter) ([]domain.Assignment, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, fmt.Errorf("assignment store not initialized")
	}
	experimentID = strings.TrimSpace(experimentID)

	args := []any{experimentID}
	where := "experiment_id = $1"
	if strings.TrimSpace(filter.VariantID) != "" {
		args = append(args, strings.TrimSpace(filter.VariantID))
		where += fmt.Sprintf(" AND variant_id = $%d", len(args))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	query := `SELECT assignment_id, experiment_id, variant_id, user_id, assigned_at, context
	 FROM assignments WHERE ` + where + ` ORDER BY assigned_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]domain.Assignment, 0)
	for rows.Next() {
		var (
			a           domain.Assignment
			contextJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.ExperimentID, &a.VariantID, &a.UserID, &a.AssignedAt, &contextJSON); err != nil {
			return nil, 0, fmt.Errorf("scan assignment: %w", err)
		}
		meta, err := decodeMetadata(contextJSON)
		if err != nil {
			return nil, 0, fmt.Errorf("decode assignment context: %w", err)
		}
		a.Context = meta
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, total, nil
}

func (s *AssignmentStore) CountByVariant(ctx context.Context, experimentID string) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("assignment store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT variant_id, COUNT(*)
		 FROM assignments
		 WHERE experiment_id = $1
		 GROUP BY variant_id`,
		strings.TrimSpace(experimentID),
	)
	if err != nil {
		return nil, fmt.Errorf("count assignments by variant: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			variantID string
			count     int64
		)
		if err := rows.Scan(&variantID, &count); err != nil {
			return nil, fmt.Errorf("scan assignment count: %w", err)
		}
		counts[variantID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count assignments by variant: %w", err)
	}
	return counts, nil
}
