package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"go.uber.org/zap"
)

// Listing bounds
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ActivityRepository implements repositories.ActivityRepository
type ActivityRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity event repository
func NewActivityRepository(db *DB, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

const activityColumns = `id, version, timestamp, event_type, event_access, event_scope,
	       prevent_indexing, status, origin, user_id, message, data`

// Insert appends an event
func (r *ActivityRepository) Insert(ctx context.Context, event *models.ActivityStreamEvent) error {
	origin, err := event.MarshalOrigin()
	if err != nil {
		return fmt.Errorf("failed to encode origin: %w", err)
	}
	data, err := event.MarshalData()
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	query := `
		INSERT INTO activity_events (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err = executor.ExecContext(ctx, query,
		event.ID,
		event.Version,
		event.Timestamp,
		event.Type,
		event.EventAccess,
		event.EventScope,
		event.PreventIndexing,
		event.Status,
		origin,
		event.UserID,
		event.Message,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity event: %w", err)
	}

	r.logger.Debug("activity event inserted", zap.String("id", event.ID.String()), zap.String("subject", event.Subject()))
	return nil
}

// GetByID retrieves an event by id
func (r *ActivityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ActivityStreamEvent, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_events WHERE id = $1`

	event, err := scanEvent(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("activity event %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get activity event: %w", err)
	}
	return event, nil
}

// List returns the events matching filter, newest first
func (r *ActivityRepository) List(ctx context.Context, filter repositories.ActivityFilter) ([]*models.ActivityStreamEvent, error) {
	query, args := buildListQuery(filter)

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.ActivityStreamEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity event rows: %w", err)
	}

	return events, nil
}

func buildListQuery(filter repositories.ActivityFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	where := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s $%d", column, len(args)))
	}

	if filter.UserID != "" {
		where("user_id =", filter.UserID)
	}
	if filter.Type != "" {
		where("event_type =", filter.Type)
	}
	if filter.Scope != "" {
		where("event_scope =", filter.Scope)
	}
	if filter.Access != "" {
		where("event_access =", filter.Access)
	}
	if !filter.Since.IsZero() {
		where("timestamp >=", filter.Since)
	}
	if !filter.Until.IsZero() {
		where("timestamp <", filter.Until)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := max(filter.Offset, 0)

	var b strings.Builder
	b.WriteString("SELECT " + activityColumns + " FROM activity_events")
	if len(conditions) > 0 {
		b.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&b, " ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.ActivityStreamEvent, error) {
	var (
		e      models.ActivityStreamEvent
		origin []byte
		data   []byte
	)
	err := row.Scan(
		&e.ID,
		&e.Version,
		&e.Timestamp,
		&e.Type,
		&e.EventAccess,
		&e.EventScope,
		&e.PreventIndexing,
		&e.Status,
		&origin,
		&e.UserID,
		&e.Message,
		&data,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(origin, &e.Origin); err != nil {
		return nil, fmt.Errorf("decode origin: %w", err)
	}
	if err := json.Unmarshal(data, &e.Data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return &e, nil
}
