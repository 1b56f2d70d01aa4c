package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/activity-pipeline/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a row changed since it was read
	ErrConflict = errors.New("record modified concurrently")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// SettingsRepository handles platform settings persistence
type SettingsRepository interface {
	// Get retrieves the settings entity by id, ErrNotFound if missing
	Get(ctx context.Context, id string) (*models.Settings, error)

	// Update overwrites the activity fields of the settings entity. A non-zero UpdatedAt
	// must match the stored one, else ErrConflict. UpdatedAt is refreshed on success.
	Update(ctx context.Context, settings *models.Settings) error
}

// ActivityFilter narrows an activity event listing. Zero fields are ignored.
type ActivityFilter struct {
	UserID string
	Type   models.EventType
	Scope  models.EventScope
	Access models.EventAccess
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// ActivityRepository handles persisted activity stream events
type ActivityRepository interface {
	// Insert appends an event
	Insert(ctx context.Context, event *models.ActivityStreamEvent) error

	// GetByID retrieves an event, ErrNotFound if missing
	GetByID(ctx context.Context, id uuid.UUID) (*models.ActivityStreamEvent, error)

	// List returns events newest first
	List(ctx context.Context, filter ActivityFilter) ([]*models.ActivityStreamEvent, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Settings SettingsRepository
	Activity ActivityRepository
}
