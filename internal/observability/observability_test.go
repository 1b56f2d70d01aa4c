package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "debug", "console", false},
		{"uppercase level", "WARN", "json", false},
		{"invalid level", "loud", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewZapLogger(tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewZapLogger_Level(t *testing.T) {
	logger, err := NewZapLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestContextLogger_AddsRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLogger(zap.New(core))

	var captured context.Context
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	logger.Info(captured, "with request")
	logger.Warn(context.Background(), "without request")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ActionReceived()
	m.ActionReceived()
	m.ActionRejected("origin")
	m.EventPublished("read", "read")
	m.ReadSuppressed()
	m.SinkFailure("stream")
	m.PipelinePanic()
	m.OverflowAction()
	m.ObserveDuration(5 * time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.actionsReceived))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.actionsRejected.WithLabelValues("origin")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsPublished.WithLabelValues("read", "read")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.readsSuppressed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sinkFailures.WithLabelValues("stream")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pipelinePanics))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.overflowActions))

	count, err := testutil.GatherAndCount(reg, "activity_pipeline_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ActionReceived()
		m.ActionRejected("origin")
		m.EventPublished("read", "read")
		m.ReadSuppressed()
		m.SinkFailure("stream")
		m.PipelinePanic()
		m.OverflowAction()
		m.ObserveDuration(time.Second)
	})
}

func TestAuditLogger_Record(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	audit := NewAuditLoggerFrom(zap.New(core))

	user := &models.ActionUser{
		ID:     "user-1",
		Name:   "alice",
		Origin: models.UserOrigin{Socket: models.SocketQuery, IP: "10.0.0.1", UserAgent: "curl/8"},
	}
	require.NoError(t, audit.Log(zapcore.ErrorLevel, user, "detects `login failure` for `alice`", map[string]any{"version": "1"}))
	require.NoError(t, audit.Log(zapcore.DebugLevel, user, "below level", nil))
	require.NoError(t, audit.Log(zapcore.InfoLevel, nil, "no user", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, map[string]any{
		"id":         "user-1",
		"name":       "alice",
		"socket":     "query",
		"ip":         "10.0.0.1",
		"user_agent": "curl/8",
	}, fields["user"])
	assert.Equal(t, map[string]any{"version": "1"}, fields["meta"])

	assert.Equal(t, map[string]any{}, entries[1].ContextMap()["user"])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAuditLogger_ReportsWriteFailure(t *testing.T) {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(failingWriter{}),
		zapcore.InfoLevel,
	)
	audit := NewAuditLoggerFrom(zap.New(core))

	err := audit.Log(zapcore.InfoLevel, &models.ActionUser{ID: "u1"}, "logout", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.NoError(t, audit.Log(zapcore.DebugLevel, &models.ActionUser{ID: "u1"}, "below level", nil))
}

func TestNewAuditLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	audit, err := NewAuditLogger(path)
	require.NoError(t, err)

	require.NoError(t, audit.Log(zapcore.InfoLevel, &models.ActionUser{ID: "u1"}, "logout", map[string]any{"type": "authentication"}))
	_ = audit.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(raw)
	assert.True(t, strings.Contains(line, `"logger":"audit"`))
	assert.True(t, strings.Contains(line, `"msg":"logout"`))
	assert.True(t, strings.Contains(line, `"id":"u1"`))
	assert.True(t, strings.Contains(line, `"timestamp"`))
}
