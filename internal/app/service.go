// Package service wires the aggregator together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/aggregator/internal/adapters/mq/kafka"
	eventqueue "github.com/okian/aggregator/internal/adapters/mq/queue"
	"github.com/okian/aggregator/internal/adapters/mq/worker"
	"github.com/okian/aggregator/internal/adapters/repository"
	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/ingest"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/internal/domain/stats"
	"github.com/okian/aggregator/pkg/logger"
	"github.com/okian/aggregator/pkg/metrics"
)

const defaultShutdownTimeout = 5 * time.Second

// Stats is the service-level view served by GET /stats.
type Stats = stats.Report

// Service owns the store, queue, counters, gateway and consumer. It is built
// once per process and shared by every request handler.
type Service struct {
	mu sync.RWMutex

	// Store selection
	driver   string
	repoOpts []repository.Option
	store    dedupe.Store

	// Advisory filter, disabled when bloomCapacity is zero
	bloomCapacity uint
	bloomFPRate   float64

	// Consumer configuration
	pollInterval time.Duration
	maxRetries   uint64
	sink         worker.Sink

	// Optional Kafka source
	kafkaCfg  *kafka.Config
	kafkaOpts []kafka.Option

	clock           func() time.Time
	shutdownTimeout time.Duration

	// Runtime components
	counters *stats.Counters
	queue    *eventqueue.InMemoryQueue
	gateway  *ingest.Gateway
	consumer *worker.Consumer
	source   *kafka.Source

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	logger logger.Logger
}

// New constructs a new Service with default configuration. Nothing is
// opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		driver:          repository.DriverSQLite,
		bloomFPRate:     0.01,
		pollInterval:    time.Second,
		maxRetries:      3,
		clock:           time.Now,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          logger.Get().Named("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the store and launches the consumer and, when configured, the
// Kafka source. The background tasks run until Stop or until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting aggregator service...", logger.String("driver", s.driver))

	store := s.store
	if store == nil {
		opened, err := repository.Open(ctx, s.driver, s.repoOpts...)
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.driver, err)
		}
		store = opened
	}

	if s.bloomCapacity > 0 {
		filtered, err := dedupe.NewFiltered(ctx, store,
			dedupe.WithCapacity(s.bloomCapacity),
			dedupe.WithFalsePositiveRate(s.bloomFPRate),
		)
		if err != nil {
			_ = store.Close()
			return err
		}
		store = filtered
	}
	s.store = store

	s.counters = stats.New(stats.WithClock(s.clock))
	s.queue = eventqueue.NewInMemoryQueue()
	s.gateway = ingest.NewGateway(s.store, s.queue, s.counters)

	consumerOpts := []worker.Option{
		worker.WithPollInterval(s.pollInterval),
		worker.WithMaxRetries(s.maxRetries),
	}
	if s.sink != nil {
		consumerOpts = append(consumerOpts, worker.WithSink(s.sink))
	}
	s.consumer = worker.NewConsumer(s.queue, s.counters, consumerOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consumer.Run(runCtx)
	}()

	if s.kafkaCfg != nil {
		s.source = kafka.NewSource(*s.kafkaCfg, s.gateway, s.kafkaOpts...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.source.Run(runCtx)
		}()
	}

	s.started = true
	s.logger.Info(ctx, "aggregator service started",
		logger.Duration("pollInterval", s.pollInterval),
		logger.Bool("bloom", s.bloomCapacity > 0),
		logger.Bool("sink", s.sink != nil),
		logger.Bool("kafka", s.kafkaCfg != nil),
	)

	return nil
}

// Stop gracefully shuts down the service. The consumer exits within one poll
// interval; events still queued at that point are not processed.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping aggregator service...")

	if err := s.consumer.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "consumer did not stop in time", logger.Error(err))
	}
	s.cancel()
	s.wg.Wait()

	if s.source != nil {
		if err := s.source.Close(); err != nil {
			s.logger.Warn(ctx, "close kafka source", logger.Error(err))
		}
		s.source = nil
	}

	_ = s.queue.Close()

	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "close store", logger.Error(err))
	}
	s.store = nil

	s.started = false
	s.logger.Info(ctx, "aggregator service stopped",
		logger.Int("dropped_in_queue", s.queue.Len()),
	)
}

// Publish admits events through the gateway.
func (s *Service) Publish(ctx context.Context, events []model.Event) (ingest.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ingest.Result{}, ErrNotStarted
	}
	return s.gateway.Publish(ctx, events), nil
}

// Events lists stored records, optionally restricted to one topic.
func (s *Service) Events(ctx context.Context, topic string) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	recs, err := s.store.ListByTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return recs, nil
}

// Stats returns the counters together with the live topic set and queue length.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return Stats{}, ErrNotStarted
	}

	topics, err := s.store.Topics(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list topics: %w", err)
	}
	stored, err := s.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count events: %w", err)
	}
	queueLen := s.queue.Len()
	metrics.UpdateQueueSize(queueLen)

	return s.counters.Snapshot().Report(topics, queueLen, stored), nil
}
