package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema creates the settings and activity tables and seeds the settings entity
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS platform_settings (
			id VARCHAR(100) PRIMARY KEY,
			valid_enterprise_edition BOOLEAN NOT NULL DEFAULT false,
			activity_listeners_users TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS activity_events (
			id UUID PRIMARY KEY,
			version VARCHAR(10) NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			event_access VARCHAR(50) NOT NULL,
			event_scope VARCHAR(50) NOT NULL,
			prevent_indexing BOOLEAN NOT NULL DEFAULT false,
			status VARCHAR(20) NOT NULL,
			origin JSONB NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			message TEXT NOT NULL,
			data JSONB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activity_events_timestamp ON activity_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_activity_events_user_id ON activity_events(user_id);
		CREATE INDEX IF NOT EXISTS idx_activity_events_type_scope ON activity_events(event_type, event_scope);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	seed := `INSERT INTO platform_settings (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := db.ExecContext(ctx, seed, models.SettingsEntityID); err != nil {
		return fmt.Errorf("failed to seed platform settings: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
