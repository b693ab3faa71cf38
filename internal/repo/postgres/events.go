package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/variant-labs/variant-go/internal/domain"
	"github.com/variant-labs/variant-go/internal/repo"
)

// EventStore persists the append-only event stream. Events are never
// updated or deleted; attribution to experiments happens at query time.
type EventStore struct {
	db DB
}

func NewEventStore(db DB) *EventStore {
	if db == nil {
		return nil
	}
	return &EventStore{db: db}
}

func (s *EventStore) Insert(ctx context.Context, event domain.Event) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("event store not initialized")
	}
	if err := event.Validate(); err != nil {
		return err
	}
	propertiesJSON, err := encodeMetadata(event.Properties)
	if err != nil {
		return fmt.Errorf("encode event properties: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO events (
			event_id,
			user_id,
			event_type,
			timestamp,
			properties,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		strings.TrimSpace(event.ID),
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(event.Type),
		event.Timestamp.UTC(),
		propertiesJSON,
		normalizeTime(event.CreatedAt),
	)
	if err != nil {
		return handleInsertError(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

func (s *EventStore) InsertBatch(ctx context.Context, events []domain.Event) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("event store not initialized")
	}
	for i, event := range events {
		if err := s.Insert(ctx, event); err != nil {
			return fmt.Errorf("insert event %d/%d: %w", i+1, len(events), err)
		}
	}
	return nil
}

func (s *EventStore) List(ctx context.Context, filter repo.EventFilter) ([]domain.Event, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, fmt.Errorf("event store not initialized")
	}

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)
	if strings.TrimSpace(filter.UserID) != "" {
		args = append(args, strings.TrimSpace(filter.UserID))
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.Type) != "" {
		args = append(args, strings.TrimSpace(filter.Type))
		clauses = append(clauses, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, filter.Until.UTC())
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := `SELECT event_id, user_id, event_type, timestamp, properties, created_at FROM events` +
		where + ` ORDER BY timestamp ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	events, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (s *EventStore) ListForUsers(ctx context.Context, userIDs []string, since, until *time.Time, types []string) ([]domain.Event, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("event store not initialized")
	}
	if len(userIDs) == 0 {
		return []domain.Event{}, nil
	}

	args := []any{userIDs}
	clauses := []string{"user_id = ANY($1)"}
	if since != nil {
		args = append(args, since.UTC())
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if until != nil {
		args = append(args, until.UTC())
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	if len(types) > 0 {
		args = append(args, types)
		clauses = append(clauses, fmt.Sprintf("event_type = ANY($%d)", len(args)))
	}

	query := `SELECT event_id, user_id, event_type, timestamp, properties, created_at
	 FROM events
	 WHERE ` + strings.Join(clauses, " AND ") + `
	 ORDER BY timestamp ASC`
	return s.queryEvents(ctx, query, args...)
}

func (s *EventStore) DistinctTypes(ctx context.Context) ([]repo.EventTypeCount, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("event store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT event_type, COUNT(*)
		 FROM events
		 GROUP BY event_type
		 ORDER BY event_type ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("distinct event types: %w", err)
	}
	defer rows.Close()

	out := make([]repo.EventTypeCount, 0)
	for rows.Next() {
		var tc repo.EventTypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan event type: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distinct event types: %w", err)
	}
	return out, nil
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			e              domain.Event
			propertiesJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Timestamp, &propertiesJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		props, err := decodeMetadata(propertiesJSON)
		if err != nil {
			return nil, fmt.Errorf("decode event properties: %w", err)
		}
		e.Properties = props
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
