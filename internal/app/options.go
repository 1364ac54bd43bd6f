package service

import (
	"time"

	"github.com/okian/aggregator/internal/adapters/mq/kafka"
	"github.com/okian/aggregator/internal/adapters/mq/worker"
	"github.com/okian/aggregator/internal/adapters/repository"
	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStoreDriver selects the store backend opened at Start.
func WithStoreDriver(driver string, opts ...repository.Option) Option {
	return func(s *Service) {
		if driver != "" {
			s.driver = driver
		}
		s.repoOpts = append(s.repoOpts, opts...)
	}
}

// WithStore uses an already opened store. The service closes it on Stop.
func WithStore(store dedupe.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithBloomFilter enables the advisory filter in front of the store.
func WithBloomFilter(capacity uint, fpRate float64) Option {
	return func(s *Service) {
		s.bloomCapacity = capacity
		if fpRate > 0 && fpRate < 1 {
			s.bloomFPRate = fpRate
		}
	}
}

// WithPollInterval sets the consumer's bounded wait.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMaxRetries sets how often a failed sink delivery is retried.
func WithMaxRetries(n uint64) Option {
	return func(s *Service) {
		s.maxRetries = n
	}
}

// WithSink enables post-acceptance delivery.
func WithSink(sink worker.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithKafka starts a Kafka source feeding the gateway.
func WithKafka(cfg kafka.Config, opts ...kafka.Option) Option {
	return func(s *Service) {
		s.kafkaCfg = &cfg
		s.kafkaOpts = opts
	}
}

// WithClock overrides the clock used for uptime.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the consumer.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
