package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"go.uber.org/zap"
)

// SettingsRepository implements repositories.SettingsRepository
type SettingsRepository struct {
	db     *DB
	txm    repositories.TransactionManager
	logger *zap.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB, logger *zap.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:     db,
		txm:    NewTransactionManager(db, logger),
		logger: logger,
	}
}

const selectSettings = `
	SELECT id, valid_enterprise_edition, activity_listeners_users, updated_at
	FROM platform_settings
	WHERE id = $1
`

// Get retrieves the settings entity by id
func (r *SettingsRepository) Get(ctx context.Context, id string) (*models.Settings, error) {
	return r.get(ctx, GetExecutor(ctx, r.db), selectSettings, id)
}

// Update overwrites the enterprise flag and listener list inside a transaction that
// locks the row, so a stale UpdatedAt is detected instead of silently overwritten
func (r *SettingsRepository) Update(ctx context.Context, settings *models.Settings) error {
	return r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		current, err := r.get(ctx, executor, selectSettings+" FOR UPDATE", settings.ID)
		if err != nil {
			return err
		}
		if !settings.UpdatedAt.IsZero() && !settings.UpdatedAt.Equal(current.UpdatedAt) {
			return fmt.Errorf("settings %s: %w", settings.ID, repositories.ErrConflict)
		}

		listeners := settings.ActivityListenersUsers
		if listeners == nil {
			listeners = []string{}
		}

		query := `
			UPDATE platform_settings
			SET valid_enterprise_edition = $2, activity_listeners_users = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`
		err = executor.QueryRowContext(ctx, query,
			settings.ID,
			settings.ValidEnterpriseEdition,
			pq.Array(listeners),
		).Scan(&settings.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}

		r.logger.Debug("settings updated",
			zap.String("id", settings.ID),
			zap.Bool("valid_enterprise_edition", settings.ValidEnterpriseEdition),
			zap.Int("listeners", len(listeners)),
		)
		return nil
	})
}

func (r *SettingsRepository) get(ctx context.Context, executor Executor, query, id string) (*models.Settings, error) {
	s := &models.Settings{}
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.ValidEnterpriseEdition,
		pq.Array(&s.ActivityListenersUsers),
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settings %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return s, nil
}
