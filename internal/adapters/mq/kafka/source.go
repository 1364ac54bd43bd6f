// Package kafka feeds events read from a Kafka topic into the ingestion gateway.
package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/aggregator/internal/domain/ingest"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
	"github.com/okian/aggregator/pkg/metrics"
)

const (
	defaultFetchRetryDelay = time.Second
	defaultMaxBytes        = 10e6
)

// ErrMalformedMessage is returned by Decode for values that are not events.
var ErrMalformedMessage = errors.New("malformed kafka message")

// Reader is the subset of *kafka.Reader the source uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher admits decoded events.
type Publisher interface {
	Publish(ctx context.Context, events []model.Event) ingest.Result
}

// Source is just another gateway caller: it decodes each message, publishes
// it, and commits the offset once Publish has returned.
type Source struct {
	reader     Reader
	publisher  Publisher
	retryDelay time.Duration
	logger     logger.Logger
}

// Config selects the brokers, topic and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewSource creates a source reading cfg.Topic with a consumer group.
func NewSource(cfg Config, pub Publisher, opts ...Option) *Source {
	s := &Source{
		publisher:  pub,
		retryDelay: defaultFetchRetryDelay,
		logger:     logger.Get().Named("kafka"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reader == nil {
		s.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			MinBytes:    1,
			MaxBytes:    defaultMaxBytes,
			MaxWait:     time.Second,
			StartOffset: kafka.FirstOffset,
		})
	}
	return s
}

// Run consumes until ctx is canceled. Fetch errors are logged and retried.
func (s *Source) Run(ctx context.Context) {
	s.logger.Info(ctx, "kafka source started")
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info(ctx, "kafka source stopped")
				return
			}
			metrics.RecordKafkaMessage("fetch_error")
			metrics.RecordErrorByComponent("kafka", "fetch")
			s.logger.Error(ctx, "fetch failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
			continue
		}

		s.handle(ctx, msg)

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.RecordErrorByComponent("kafka", "commit")
			s.logger.Error(ctx, "commit failed",
				logger.Int64("offset", msg.Offset),
				logger.Int("partition", msg.Partition),
				logger.Error(err),
			)
		}
	}
}

func (s *Source) handle(ctx context.Context, msg kafka.Message) { //nolint:gocritic // hugeParam: kafka.Message is returned by value
	events, err := Decode(msg.Value)
	if err != nil {
		metrics.RecordKafkaMessage("malformed")
		s.logger.Warn(ctx, "skipping malformed message",
			logger.Int64("offset", msg.Offset),
			logger.Int("partition", msg.Partition),
			logger.Error(err),
		)
		return
	}

	res := s.publisher.Publish(ctx, events)
	metrics.RecordKafkaMessage("published")
	if res.Invalid > 0 || res.Failed > 0 {
		s.logger.Warn(ctx, "message partially rejected",
			logger.Int64("offset", msg.Offset),
			logger.Int("invalid", res.Invalid),
			logger.Int("failed", res.Failed),
		)
	}
}

// Close releases the underlying reader.
func (s *Source) Close() error {
	return s.reader.Close()
}

// Decode parses a message value holding one event object or an array of them.
func Decode(value []byte) ([]model.Event, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrMalformedMessage)
	}

	if trimmed[0] == '[' {
		var events []model.Event
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		return events, nil
	}

	var e model.Event
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return []model.Event{e}, nil
}
