package activity

import (
	"context"
	"time"

	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/internal/observability"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

// rejection reason recorded for actions without a route
const rejectUnrouted = "unrouted"

// Pipeline runs one user action through gate, classifier, read cache and dispatcher.
// It owns the routing table and the read cache for its whole lifetime.
type Pipeline struct {
	gate       *Gate
	classifier *Classifier
	reads      *ReadCache
	dispatcher *Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewPipeline assembles a Pipeline from its components
func NewPipeline(gate *Gate, classifier *Classifier, reads *ReadCache, dispatcher *Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		gate:       gate,
		classifier: classifier,
		reads:      reads,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
	}
}

// New builds a Pipeline from the activity configuration
func New(cfg config.ActivityConfig, settings SettingsProvider, auditLog AuditLogger, store EventStore, metrics *observability.Metrics, logger *zap.Logger) *Pipeline {
	return NewPipeline(
		NewGate(settings, logger),
		NewClassifier(),
		NewReadCache(cfg.ReadCacheSize, cfg.ReadCacheTTL),
		NewDispatcher(NewSanitizer(cfg.RedactedInputs), auditLog, store, cfg.AuditLogTypes, metrics, logger),
		metrics,
		logger,
	)
}

// Process handles one action and reports whether an event was published.
// Ineligible, unrouted and deduplicated actions return false without error.
func (p *Pipeline) Process(ctx context.Context, action *models.UserAction) bool {
	start := time.Now()
	defer func() { p.metrics.ObserveDuration(time.Since(start)) }()

	if reason := p.gate.Check(ctx, action); reason != RejectNone {
		p.metrics.ActionRejected(string(reason))
		p.logger.Debug("activity action rejected",
			zap.String("reason", string(reason)),
			zap.String("action", action.Key()),
			zap.String("user_id", action.User.ID))
		return false
	}

	classification, ok := p.classifier.Classify(action)
	if !ok {
		p.metrics.ActionRejected(rejectUnrouted)
		p.logger.Debug("activity action not audit relevant", zap.String("action", action.Key()))
		return false
	}

	if !classification.IsRead() {
		return p.dispatcher.Publish(ctx, action, classification.Message)
	}
	return p.publishRead(ctx, action, classification)
}

// publishRead publishes a read at most once per (entity, user) and TTL window.
// The pair is marked only after a successful append.
func (p *Pipeline) publishRead(ctx context.Context, action *models.UserAction, c Classification) bool {
	unlock := p.reads.Lock(c.ReadTarget, action.User.ID)
	defer unlock()

	if !p.reads.ShouldPublish(c.ReadTarget, action.User.ID) {
		p.metrics.ReadSuppressed()
		return false
	}
	if !p.dispatcher.Publish(ctx, action, c.Message) {
		return false
	}
	p.reads.MarkPublished(c.ReadTarget, action.User.ID)
	return true
}

// Reads exposes the read cache, mainly for status reporting
func (p *Pipeline) Reads() *ReadCache {
	return p.reads
}
