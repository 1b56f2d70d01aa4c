package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"github.com/upb/activity-pipeline/stream"
	"go.uber.org/zap/zaptest"
)

// memorySettings is an in-memory SettingsRepository
type memorySettings struct {
	mu       sync.Mutex
	settings models.Settings
}

func (m *memorySettings) Get(_ context.Context, id string) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != m.settings.ID {
		return nil, repositories.ErrNotFound
	}
	s := m.settings
	return &s, nil
}

func (m *memorySettings) Update(_ context.Context, s *models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = *s
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "dev",
			Password:        "activity_password",
			Database:        "activity_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
		},
		Activity: config.ActivityConfig{
			RedactedInputs:   []string{"password", "token"},
			AuditLogTypes:    []string{"administration"},
			AuditLogOutput:   filepath.Join(dir, "audit.log"),
			ReadCacheTTL:     time.Hour,
			ReadCacheSize:    100,
			SettingsCacheTTL: time.Minute,
			WorkerCount:      2,
			BufferSize:       16,
		},
		Stream: config.StreamConfig{
			Backend: config.StreamBackendFile,
			File:    config.FileStreamConfig{Path: filepath.Join(dir, "stream", "activity.jsonl")},
		},
		Auth: config.AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef", Issuer: "activity-tests"},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "console",
			MetricsEnabled: true,
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestNewDependenciesWithRepositories(t *testing.T) {
	t.Run("settings repository required", func(t *testing.T) {
		_, err := NewDependenciesWithRepositories(context.Background(), testConfig(t), &repositories.Repositories{}, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("postgres stream requires the activity repository", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Stream.Backend = config.StreamBackendPostgres

		repos := &repositories.Repositories{Settings: &memorySettings{}}
		_, err := NewDependenciesWithRepositories(context.Background(), cfg, repos, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize activity stream")
	})

	t.Run("wires every component", func(t *testing.T) {
		ctx := context.Background()
		repos := &repositories.Repositories{Settings: &memorySettings{settings: models.Settings{ID: models.SettingsEntityID}}}

		deps, err := NewDependenciesWithRepositories(ctx, testConfig(t), repos, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.DB)
		assert.NotNil(t, deps.SettingsService)
		assert.NotNil(t, deps.Stream)
		assert.NotNil(t, deps.Listener)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.Registry)
		assert.NotNil(t, deps.TokenValidator)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.Nil(t, deps.EventLog(), "file backend keeps no queryable event log")
		assert.Nil(t, deps.StreamHealth())
	})
}

func TestDependencies_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	repos := &repositories.Repositories{Settings: &memorySettings{settings: models.Settings{
		ID:                     models.SettingsEntityID,
		ValidEnterpriseEdition: true,
		ActivityListenersUsers: []string{"user-1"},
	}}}

	deps, err := NewDependenciesWithRepositories(ctx, cfg, repos, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, deps.Start())
	assert.True(t, deps.Listener.Status().Running)

	read := &models.UserAction{
		EventType:   models.EventTypeRead,
		EventScope:  models.EventScopeRead,
		EventAccess: models.EventAccessExtended,
		User:        models.ActionUser{ID: "user-1", Origin: models.UserOrigin{Socket: models.SocketQuery}},
		ContextData: map[string]any{"id": "report-1", "entity_type": "Report", "entity_name": "APT29"},
	}
	login := &models.UserAction{
		EventType:   models.EventTypeAuthentication,
		EventScope:  models.EventScopeLogin,
		EventAccess: models.EventAccessAdministration,
		User:        models.ActionUser{ID: "user-9", Origin: models.UserOrigin{Socket: models.SocketQuery}},
		ContextData: map[string]any{"provider": "oidc", "username": "bob", "password": "hunter2"},
	}
	subscription := &models.UserAction{
		EventType:   models.EventTypeMutation,
		EventScope:  models.EventScopeUpdate,
		EventAccess: models.EventAccessAdministration,
		User:        models.ActionUser{ID: "user-1", Origin: models.UserOrigin{Socket: models.SocketSubscription}},
		Message:     "updates `name`",
	}

	deps.Bus.Dispatch(ctx, read)
	assert.Eventually(t, func() bool { return deps.Listener.Stats().Published == 1 }, 2*time.Second, 10*time.Millisecond)

	deps.Bus.Dispatch(ctx, read)
	deps.Bus.Dispatch(ctx, login)
	deps.Bus.Dispatch(ctx, subscription)

	require.NoError(t, deps.Close(ctx))
	assert.False(t, deps.Listener.Status().Running)
	assert.NoError(t, deps.Close(ctx), "second close is a no-op")

	count, err := stream.VerifyFile(cfg.Stream.File.Path)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "duplicate read and subscription traffic are not recorded")

	stats := deps.Listener.Stats()
	assert.Equal(t, uint64(4), stats.Processed)
	assert.Equal(t, uint64(2), stats.Published)

	audit, err := os.ReadFile(cfg.Activity.AuditLogOutput)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "login from provider `oidc`")
	assert.Contains(t, string(audit), "*** Redacted ***")
	assert.NotContains(t, string(audit), "hunter2")
	assert.NotContains(t, string(audit), "APT29", "extended reads stay out of the audit log")
}
