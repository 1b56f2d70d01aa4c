package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/upb/activity-pipeline/config"
	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

// Writer is the subset of kafka.Writer the store uses
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore writes events to a topic keyed by user id, so one user's events stay ordered
type KafkaStore struct {
	writer Writer
	closed atomic.Bool
	logger *zap.Logger
}

// NewKafkaStore creates a store writing to cfg.Topic
func NewKafkaStore(cfg config.KafkaConfig, logger *zap.Logger) *KafkaStore {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	logger.Info("kafka activity stream ready",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)
	return NewKafkaStoreWithWriter(w, logger)
}

// NewKafkaStoreWithWriter allows injecting a writer
func NewKafkaStoreWithWriter(w Writer, logger *zap.Logger) *KafkaStore {
	return &KafkaStore{writer: w, logger: logger}
}

// Append writes one message per event
func (s *KafkaStore) Append(ctx context.Context, event *models.ActivityStreamEvent) error {
	if s.closed.Load() {
		return ErrClosed
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "subject", Value: []byte(event.Subject())},
			{Key: "version", Value: []byte(event.Version)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (s *KafkaStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.writer.Close()
}
