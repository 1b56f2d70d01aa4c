// Package stream holds the durable activity event stream backends.
//
// Every backend appends the full event envelope and keeps events replayable: postgres
// rows, a JetStream stream, a Kafka topic or a hash-chained JSONL file.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/models"
	"github.com/upb/activity-pipeline/repositories"
	"go.uber.org/zap"
)

// ErrClosed is returned by Append after Close
var ErrClosed = errors.New("activity stream closed")

// Store is an append-only activity event stream
type Store interface {
	Append(ctx context.Context, event *models.ActivityStreamEvent) error
	Close() error
}

// HealthChecker is implemented by stores that can report connectivity
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// New builds the store selected by cfg.Backend. repo is only used by the postgres backend.
func New(ctx context.Context, cfg config.StreamConfig, repo repositories.ActivityRepository, logger *zap.Logger) (Store, error) {
	logger = logger.Named("stream").With(zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case config.StreamBackendPostgres:
		if repo == nil {
			return nil, errors.New("postgres stream requires an activity repository")
		}
		return NewPostgresStore(repo, logger), nil
	case config.StreamBackendNATS:
		return NewNATSStore(ctx, cfg.NATS, logger)
	case config.StreamBackendKafka:
		return NewKafkaStore(cfg.Kafka, logger), nil
	case config.StreamBackendFile:
		return NewFileStore(cfg.File.Path, logger)
	default:
		return nil, fmt.Errorf("unknown stream backend %q", cfg.Backend)
	}
}
