package observability

import (
	"fmt"
	"time"

	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditLogger writes activity records to the dedicated "audit" log
type AuditLogger struct {
	logger *zap.Logger
	core   zapcore.Core
}

// NewAuditLogger builds a JSON audit logger writing to output
// ("stdout", "stderr" or a file path).
func NewAuditLogger(output string) (*AuditLogger, error) {
	if output == "" {
		output = "stdout"
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{output}
	cfg.Sampling = nil
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit logger: %w", err)
	}
	return NewAuditLoggerFrom(logger), nil
}

// NewAuditLoggerFrom names an existing logger as the audit log
func NewAuditLoggerFrom(logger *zap.Logger) *AuditLogger {
	named := logger.Named("audit")
	return &AuditLogger{logger: named, core: named.Core()}
}

// Log writes one audit record. Records below the logger level are discarded.
// The entry goes straight to the core so encoding and write failures reach the caller.
func (a *AuditLogger) Log(level zapcore.Level, user *models.ActionUser, message string, meta map[string]any) error {
	if !a.core.Enabled(level) {
		return nil
	}
	entry := zapcore.Entry{
		Level:      level,
		Time:       time.Now(),
		LoggerName: a.logger.Name(),
		Message:    message,
	}
	if err := a.core.Write(entry, []zap.Field{
		zap.Object("user", auditUser{user}),
		zap.Any("meta", meta),
	}); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Sync flushes buffered records
func (a *AuditLogger) Sync() error {
	return a.logger.Sync()
}

type auditUser struct {
	*models.ActionUser
}

func (u auditUser) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	if u.ActionUser == nil {
		return nil
	}
	enc.AddString("id", u.ID)
	if u.Name != "" {
		enc.AddString("name", u.Name)
	}
	enc.AddString("socket", u.Origin.Socket)
	if u.Origin.IP != "" {
		enc.AddString("ip", u.Origin.IP)
	}
	if u.Origin.UserAgent != "" {
		enc.AddString("user_agent", u.Origin.UserAgent)
	}
	if u.Origin.ApplicantID != "" {
		enc.AddString("applicant_id", u.Origin.ApplicantID)
	}
	return nil
}
