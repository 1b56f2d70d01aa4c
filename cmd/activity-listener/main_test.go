package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/activity-pipeline/app"
	"github.com/upb/activity-pipeline/auth"
	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"github.com/upb/activity-pipeline/routes"
	"github.com/upb/activity-pipeline/stream"
	"go.uber.org/zap/zaptest"
)

const testSecret = "0123456789abcdef0123456789abcdef"

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

func TestMain(m *testing.M) {
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("LOG_LEVEL", "error")

	os.Exit(m.Run())
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr string
	}{
		{name: "default json logger", level: "info", format: "json"},
		{name: "development console logger", level: "debug", format: "console"},
		{name: "invalid log level", level: "invalid", format: "json", wantErr: "invalid log level"},
		{name: "defaults when not set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.level)
			t.Setenv("LOG_FORMAT", tt.format)

			logger, err := initLogger()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, logger)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}
}

// newTestServer wires the application over in-memory settings and a file stream
func newTestServer(t *testing.T) (*httptest.Server, *app.Dependencies) {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig(t)
	repos := &repositories.Repositories{Settings: &memorySettings{settings: models.Settings{
		ID:                     models.SettingsEntityID,
		ValidEnterpriseEdition: true,
		ActivityListenersUsers: []string{"user-1"},
	}}}

	deps, err := app.NewDependenciesWithRepositories(ctx, cfg, repos, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, deps.Start())
	t.Cleanup(func() { _ = deps.Close(ctx) })

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts, deps
}

func issueToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token, err := auth.NewHMACValidator(testSecret, "activity-tests").Issue(subject, subject, roles, time.Hour)
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	t.Run("liveness", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", "", "")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Data["status"])
	})

	t.Run("readiness without database", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, ts.URL+"/readyz", "", "")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, ts.URL+"/metrics", "", "")
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAPIEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	user := issueToken(t, "user-1")
	admin := issueToken(t, "admin-1", "admin")

	tests := []struct {
		name           string
		method         string
		path           string
		token          string
		body           string
		expectedStatus int
	}{
		{"status requires auth", http.MethodGet, "/api/v1/activity/status", "", "", http.StatusUnauthorized},
		{"status for user", http.MethodGet, "/api/v1/activity/status", user, "", http.StatusOK},
		{"settings require admin", http.MethodGet, "/api/v1/settings/activity/", user, "", http.StatusForbidden},
		{"settings for admin", http.MethodGet, "/api/v1/settings/activity/", admin, "", http.StatusOK},
		{"events disabled on file backend", http.MethodGet, "/api/v1/activity/events", admin, "", http.StatusServiceUnavailable},
		{"invalid action", http.MethodPost, "/api/v1/actions", user, `{"event_type": "read"}`, http.StatusBadRequest},
		{"unknown endpoint", http.MethodGet, "/api/v1/nope", user, "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, tc.method, ts.URL+tc.path, tc.token, tc.body)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestIngestReachesStream(t *testing.T) {
	ts, deps := newTestServer(t)
	user := issueToken(t, "user-1")

	body := `{
		"event_type": "read",
		"event_scope": "read",
		"event_access": "extended",
		"context_data": {"id": "report-1", "entity_type": "Report", "entity_name": "APT29"}
	}`
	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/actions", user, body)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Eventually(t, func() bool { return deps.Listener.Stats().Published == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, deps.Close(context.Background()))
	count, err := stream.VerifyFile(deps.Config.Stream.File.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCORSMiddleware(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/actions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddleware(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegrationWithRealDependencies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Stream.Backend = config.StreamBackendPostgres

	deps, err := app.NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
		return
	}
	defer deps.Close(ctx)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/readyz", "", "")
	defer resp.Body.Close()

	var body struct {
		Data struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	t.Logf("readiness response: %+v", body.Data)

	assert.Equal(t, "healthy", body.Data.Status)
	assert.Equal(t, "healthy", body.Data.Checks["database"])
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            5432,
			User:            getEnvOrDefault("DB_USER", "dev"),
			Password:        getEnvOrDefault("DB_PASSWORD", "activity_password"),
			Database:        getEnvOrDefault("DB_NAME", "activity_test"),
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Activity: config.ActivityConfig{
			RedactedInputs:   []string{"password"},
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
			File:    config.FileStreamConfig{Path: filepath.Join(dir, "activity.jsonl")},
		},
		Auth: config.AuthConfig{JWTSecret: testSecret, Issuer: "activity-tests"},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
