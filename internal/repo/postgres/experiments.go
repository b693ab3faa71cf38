package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

// ExperimentStore persists experiments and their variants. It holds a
// *sql.DB rather than the narrower DB interface because experiment creation
// writes two tables atomically.
type ExperimentStore struct {
	db *sql.DB
}

func NewExperimentStore(db *sql.DB) *ExperimentStore {
	if db == nil {
		return nil
	}
	return &ExperimentStore{db: db}
}

func (s *ExperimentStore) Create(ctx context.Context, experiment domain.Experiment) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("experiment store not initialized")
	}
	if err := experiment.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := normalizeTime(experiment.CreatedAt)
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO experiments (
			experiment_id,
			name,
			description,
			status,
			created_at,
			updated_at,
			started_at,
			ended_at,
			created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		strings.TrimSpace(experiment.ID),
		strings.TrimSpace(experiment.Name),
		nullString(strings.TrimSpace(experiment.Description)),
		string(experiment.Status),
		createdAt,
		createdAt,
		nullTimePtr(experiment.StartedAt),
		nullTimePtr(experiment.EndedAt),
		strings.TrimSpace(experiment.CreatedBy),
	)
	if err != nil {
		return handleInsertError(fmt.Errorf("insert experiment: %w", err))
	}

	for i, variant := range experiment.Variants {
		configJSON, err := encodeMetadata(variant.Config)
		if err != nil {
			return fmt.Errorf("encode variant config: %w", err)
		}
		variantCreatedAt := normalizeTime(variant.CreatedAt)
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO variants (
				variant_id,
				experiment_id,
				name,
				description,
				traffic_allocation,
				config,
				position,
				created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			strings.TrimSpace(variant.ID),
			strings.TrimSpace(experiment.ID),
			strings.TrimSpace(variant.Name),
			nullString(strings.TrimSpace(variant.Description)),
			variant.TrafficAllocation,
			configJSON,
			i,
			variantCreatedAt,
		)
		if err != nil {
			return handleInsertError(fmt.Errorf("insert variant: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *ExperimentStore) Get(ctx context.Context, id string) (domain.Experiment, error) {
	if s == nil || s.db == nil {
		return domain.Experiment{}, fmt.Errorf("experiment store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Experiment{}, fmt.Errorf("experiment id is required")
	}

	var (
		experiment  domain.Experiment
		description sql.NullString
		status      string
		startedAt   sql.NullTime
		endedAt     sql.NullTime
	)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT experiment_id, name, description, status, created_at, updated_at, started_at, ended_at, created_by
		 FROM experiments
		 WHERE experiment_id = $1`,
		id,
	)
	if err := row.Scan(
		&experiment.ID,
		&experiment.Name,
		&description,
		&status,
		&experiment.CreatedAt,
		&experiment.UpdatedAt,
		&startedAt,
		&endedAt,
		&experiment.CreatedBy,
	); err != nil {
		return domain.Experiment{}, handleNotFound(err)
	}
	experiment.Description = description.String
	experiment.Status = domain.ExperimentStatus(status)
	experiment.StartedAt = timePtr(startedAt)
	experiment.EndedAt = timePtr(endedAt)

	variants, err := s.listVariants(ctx, id)
	if err != nil {
		return domain.Experiment{}, err
	}
	experiment.Variants = variants
	return experiment, nil
}

func (s *ExperimentStore) listVariants(ctx context.Context, experimentID string) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT variant_id, experiment_id, name, description, traffic_allocation, config, created_at
		 FROM variants
		 WHERE experiment_id = $1
		 ORDER BY position ASC`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 4)
	for rows.Next() {
		var (
			v           domain.Variant
			description sql.NullString
			configJSON  []byte
		)
		if err := rows.Scan(&v.ID, &v.ExperimentID, &v.Name, &description, &v.TrafficAllocation, &configJSON, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		v.Description = description.String
		config, err := decodeMetadata(configJSON)
		if err != nil {
			return nil, fmt.Errorf("decode variant config: %w", err)
		}
		v.Config = config
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	return variants, nil
}

func (s *ExperimentStore) List(ctx context.Context, filter repo.ExperimentFilter) ([]domain.Experiment, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, fmt.Errorf("experiment store not initialized")
	}

	clauses := make([]string, 0, 1)
	args := make([]any, 0, 3)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiments`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count experiments: %w", err)
	}

	query := `SELECT experiment_id, name, description, status, created_at, updated_at, started_at, ended_at, created_by
	 FROM experiments` + where + ` ORDER BY created_at DESC`
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
		return nil, 0, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	experiments := make([]domain.Experiment, 0)
	for rows.Next() {
		var (
			e           domain.Experiment
			description sql.NullString
			status      string
			startedAt   sql.NullTime
			endedAt     sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Name, &description, &status, &e.CreatedAt, &e.UpdatedAt, &startedAt, &endedAt, &e.CreatedBy); err != nil {
			return nil, 0, fmt.Errorf("scan experiment: %w", err)
		}
		e.Description = description.String
		e.Status = domain.ExperimentStatus(status)
		e.StartedAt = timePtr(startedAt)
		e.EndedAt = timePtr(endedAt)
		experiments = append(experiments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list experiments: %w", err)
	}

	for i := range experiments {
		variants, err := s.listVariants(ctx, experiments[i].ID)
		if err != nil {
			return nil, 0, err
		}
		experiments[i].Variants = variants
	}
	return experiments, total, nil
}

func (s *ExperimentStore) UpdateStatus(ctx context.Context, id string, status domain.ExperimentStatus, startedAt, endedAt *time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("experiment store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE experiments
		 SET status = $2,
		     updated_at = $3,
		     started_at = COALESCE($4, started_at),
		     ended_at = COALESCE($5, ended_at)
		 WHERE experiment_id = $1`,
		strings.TrimSpace(id),
		string(status),
		time.Now().UTC(),
		nullTimePtr(startedAt),
		nullTimePtr(endedAt),
	)
	if err != nil {
		return fmt.Errorf("update experiment status: %w", err)
	}
	return requireRowAffected(res)
}

func (s *ExperimentStore) UpdateDetails(ctx context.Context, id string, name, description *string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("experiment store not initialized")
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE experiments
		 SET name = COALESCE($2, name),
		     description = COALESCE($3, description),
		     updated_at = $4
		 WHERE experiment_id = $1`,
		strings.TrimSpace(id),
		nullStringPtr(name),
		nullStringPtr(description),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update experiment details: %w", err)
	}
	return requireRowAffected(res)
}

func (s *ExperimentStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("experiment store not initialized")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE experiment_id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func nullStringPtr(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*value), Valid: true}
}
