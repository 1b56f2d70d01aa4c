package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/activity-pipeline/auth"
	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/internal/actionbus"
	"github.com/upb/activity-pipeline/internal/observability"
	"github.com/upb/activity-pipeline/middleware"
	"github.com/upb/activity-pipeline/repositories"
	"github.com/upb/activity-pipeline/repositories/postgres"
	"github.com/upb/activity-pipeline/services/activity"
	"github.com/upb/activity-pipeline/services/settings"
	"github.com/upb/activity-pipeline/stream"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when built on caller supplied repositories
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Settings repositories.SettingsRepository
	Activity repositories.ActivityRepository

	// Settings
	SettingsCache   *settings.Cache
	SettingsService *settings.Service

	// Activity pipeline
	Stream   stream.Store
	AuditLog *observability.AuditLogger
	Bus      *actionbus.Bus
	Pipeline *activity.Pipeline
	Listener *activity.Listener

	// Observability
	Metrics  *observability.Metrics // nil when metrics are disabled
	Registry *prometheus.Registry

	// Auth
	TokenValidator *auth.HMACValidator // nil when no secret is configured
	AuthMiddleware *middleware.AuthMiddleware

	stopCleanup chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// NewDependencies connects to PostgreSQL and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.initRepositories()

	if err := deps.wire(ctx); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithRepositories wires the application on top of repos without
// opening a database connection
func NewDependenciesWithRepositories(ctx context.Context, cfg *config.Config, repos *repositories.Repositories, logger *zap.Logger) (*Dependencies, error) {
	if repos == nil || repos.Settings == nil {
		return nil, errors.New("a settings repository is required")
	}
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Settings: repos.Settings,
		Activity: repos.Activity,
	}

	if err := deps.wire(ctx); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) wire(ctx context.Context) error {
	d.initObservability()
	d.initSettings()

	if err := d.initStream(ctx); err != nil {
		return fmt.Errorf("failed to initialize activity stream: %w", err)
	}
	if err := d.initPipeline(); err != nil {
		return fmt.Errorf("failed to initialize activity pipeline: %w", err)
	}
	d.initAuth()
	return nil
}

// initDatabase initializes the PostgreSQL connection and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()
	d.Settings = repos.Settings
	d.Activity = repos.Activity

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initObservability() {
	if !d.Config.Observability.MetricsEnabled {
		return
	}
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
}

func (d *Dependencies) initSettings() {
	d.SettingsCache = settings.NewCache(settings.DefaultCacheSize, d.Config.Activity.SettingsCacheTTL)
	d.SettingsService = settings.NewService(d.Settings, d.SettingsCache, d.Logger.Named("settings"))

	d.stopCleanup = make(chan struct{})
	d.SettingsCache.StartCleanupWorker(settings.DefaultCacheTTL, d.stopCleanup)
}

func (d *Dependencies) initStream(ctx context.Context) error {
	store, err := stream.New(ctx, d.Config.Stream, d.Activity, d.Logger)
	if err != nil {
		return err
	}
	d.Stream = store

	d.Logger.Info("activity stream ready", zap.String("backend", d.Config.Stream.Backend))
	return nil
}

func (d *Dependencies) initPipeline() error {
	auditLog, err := observability.NewAuditLogger(d.Config.Activity.AuditLogOutput)
	if err != nil {
		return err
	}
	d.AuditLog = auditLog

	logger := d.Logger.Named("activity")
	d.Bus = actionbus.New(logger)
	d.Pipeline = activity.New(d.Config.Activity, d.SettingsService, d.AuditLog, d.Stream, d.Metrics, logger)
	d.Listener = activity.NewListener(d.Pipeline, d.Bus, activity.ListenerConfig{
		BufferSize:  d.Config.Activity.BufferSize,
		WorkerCount: d.Config.Activity.WorkerCount,
	}, d.Metrics, logger)
	return nil
}

func (d *Dependencies) initAuth() {
	if d.Config.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not set, authenticated endpoints disabled")
		// Use reject-all validator so protected routes return 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}
	d.TokenValidator = auth.NewHMACValidator(d.Config.Auth.JWTSecret, d.Config.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(&tokenValidatorAdapter{validator: d.TokenValidator}, d.Logger)
	d.Logger.Info("bearer token validation enabled", zap.String("issuer", d.Config.Auth.Issuer))
}

// Start registers the activity listener on the action bus
func (d *Dependencies) Start() error {
	return d.Listener.Start()
}

// EventLog returns the repository serving persisted events, nil when the stream
// backend keeps events outside PostgreSQL
func (d *Dependencies) EventLog() repositories.ActivityRepository {
	if d.Config.Stream.Backend != config.StreamBackendPostgres || d.Activity == nil {
		return nil
	}
	return d.Activity
}

// StreamHealth returns the stream connectivity check, nil when the backend has none
func (d *Dependencies) StreamHealth() stream.HealthChecker {
	if hc, ok := d.Stream.(stream.HealthChecker); ok {
		return hc
	}
	return nil
}

// tokenValidatorAdapter adapts auth.HMACValidator to middleware.TokenValidator
type tokenValidatorAdapter struct {
	validator *auth.HMACValidator
}

func (a *tokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	parsed, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		Sub:         parsed.Subject,
		Name:        parsed.Name,
		Roles:       parsed.Roles,
		ApplicantID: parsed.ApplicantID,
	}, nil
}

// rejectAllValidator rejects all tokens (used when no secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close drains the listener and releases every dependency. Safe to call twice.
func (d *Dependencies) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.close(ctx)
	})
	return d.closeErr
}

func (d *Dependencies) close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Listener first so queued actions still reach the stream
	if d.Listener != nil {
		if err := d.Listener.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop activity listener: %w", err))
		}
	}

	if d.Stream != nil {
		if err := d.Stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close activity stream: %w", err))
		}
	}

	if d.stopCleanup != nil {
		close(d.stopCleanup)
	}

	if d.AuditLog != nil {
		_ = d.AuditLog.Sync()
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
