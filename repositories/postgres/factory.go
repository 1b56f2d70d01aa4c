package postgres

import (
	"context"

	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory owns the connection pool and builds the repositories on it
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to the database described by cfg
func NewRepositoryFactory(cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, logger: logger}, nil
}

// InitSchema creates the tables used by the repositories
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Settings: NewSettingsRepository(f.db, f.logger),
		Activity: NewActivityRepository(f.db, f.logger),
	}
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the connection pool
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
