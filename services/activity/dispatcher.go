package activity

import (
	"context"
	"fmt"

	"github.com/upb/activity-pipeline/internal/observability"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink names used in logs and metrics
const (
	SinkAuditLog = "audit_log"
	SinkStream   = "stream"
)

// AuditLogger is the structured audit log sink
type AuditLogger interface {
	Log(level zapcore.Level, user *models.ActionUser, message string, meta map[string]any) error
}

// EventStore is the durable activity stream sink
type EventStore interface {
	Append(ctx context.Context, event *models.ActivityStreamEvent) error
}

// Dispatcher builds activity events and writes them to both sinks
type Dispatcher struct {
	sanitizer  *Sanitizer
	auditLog   AuditLogger
	store      EventStore
	auditTypes map[models.EventAccess]struct{}
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewDispatcher creates a Dispatcher. Actions whose access is in auditTypes
// are also written to the audit log.
func NewDispatcher(sanitizer *Sanitizer, auditLog AuditLogger, store EventStore, auditTypes []string, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	types := make(map[models.EventAccess]struct{}, len(auditTypes))
	for _, t := range auditTypes {
		types[models.EventAccess(t)] = struct{}{}
	}
	return &Dispatcher{
		sanitizer:  sanitizer,
		auditLog:   auditLog,
		store:      store,
		auditTypes: types,
		metrics:    metrics,
		logger:     logger,
	}
}

// AuditLogged reports whether actions of the given access reach the audit log
func (d *Dispatcher) AuditLogged(access models.EventAccess) bool {
	_, ok := d.auditTypes[access]
	return ok
}

// Publish writes the action to the audit log (when eligible) and appends it to the stream.
// A failing sink never prevents the other write. Publish reports whether the stream
// append succeeded.
func (d *Dispatcher) Publish(ctx context.Context, action *models.UserAction, message string) bool {
	event := models.NewActivityStreamEvent(action, message, d.sanitizer.Sanitize(action.ContextData))

	if d.AuditLogged(action.EventAccess) {
		level := zapcore.InfoLevel
		if action.IsError() {
			level = zapcore.ErrorLevel
		}
		if err := d.writeAuditLog(level, &action.User, message, event.AuditMeta()); err != nil {
			d.metrics.SinkFailure(SinkAuditLog)
			d.logger.Error("failed to write activity audit log",
				zap.Error(err),
				zap.String("event_id", event.ID.String()),
				zap.String("user_id", event.UserID))
		}
	}

	if err := d.store.Append(ctx, event); err != nil {
		d.metrics.SinkFailure(SinkStream)
		d.logger.Error("failed to append activity event",
			zap.Error(err),
			zap.String("event_id", event.ID.String()),
			zap.String("type", string(event.Type)),
			zap.String("scope", string(event.EventScope)),
			zap.String("user_id", event.UserID))
		return false
	}

	d.metrics.EventPublished(string(event.Type), string(event.EventScope))
	return true
}

func (d *Dispatcher) writeAuditLog(level zapcore.Level, user *models.ActionUser, message string, meta map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit log panic: %v", r)
		}
	}()
	return d.auditLog.Log(level, user, message, meta)
}
