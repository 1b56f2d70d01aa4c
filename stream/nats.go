package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// jetStreamPublisher is the subset of jetstream.JetStream the store uses
type jetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSStore publishes events to a JetStream stream on "activity.<type>.<scope>" subjects
type NATSStore struct {
	nc     *nats.Conn
	js     jetStreamPublisher
	closed atomic.Bool
	logger *zap.Logger
}

// NewNATSStore connects to NATS and makes sure the stream exists
func NewNATSStore(ctx context.Context, cfg config.NATSConfig, logger *zap.Logger) (*NATSStore, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("activity-listener"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{"activity.>"},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     cfg.MaxAge,
		Storage:    jetstream.FileStorage,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}

	logger.Info("jetstream activity stream ready", zap.String("stream", cfg.StreamName))
	return &NATSStore{nc: nc, js: js, logger: logger}, nil
}

func newNATSStoreWithPublisher(js jetStreamPublisher, logger *zap.Logger) *NATSStore {
	return &NATSStore{js: js, logger: logger}
}

// Append publishes the event and waits for the stream acknowledgement.
// The event id is the JetStream message id, so a retried append is stored once.
func (s *NATSStore) Append(ctx context.Context, event *models.ActivityStreamEvent) error {
	if s.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ack, err := s.js.Publish(ctx, event.Subject(), data, jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Subject(), err)
	}

	s.logger.Debug("activity event published",
		zap.String("subject", event.Subject()),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate),
	)
	return nil
}

// HealthCheck reports whether the connection is up
func (s *NATSStore) HealthCheck(context.Context) error {
	if s.nc == nil {
		return nil
	}
	if !s.nc.IsConnected() {
		return errors.New("nats connection is " + s.nc.Status().String())
	}
	return nil
}

// Close drains the connection
func (s *NATSStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) || s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
