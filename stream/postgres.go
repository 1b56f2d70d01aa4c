package stream

import (
	"context"
	"sync/atomic"

	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"go.uber.org/zap"
)

// PostgresStore appends events to the activity_events table
type PostgresStore struct {
	repo   repositories.ActivityRepository
	closed atomic.Bool
	logger *zap.Logger
}

// NewPostgresStore creates a store backed by the activity repository
func NewPostgresStore(repo repositories.ActivityRepository, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{repo: repo, logger: logger}
}

// Append inserts the event
func (s *PostgresStore) Append(ctx context.Context, event *models.ActivityStreamEvent) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.repo.Insert(ctx, event)
}

// Close stops accepting events; the connection pool is owned by the repository factory
func (s *PostgresStore) Close() error {
	s.closed.Store(true)
	return nil
}
