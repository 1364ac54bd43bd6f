package kafka

import (
	"time"

	"github.com/okian/aggregator/pkg/logger"
)

// Option applies a configuration option to the Source.
type Option func(*Source)

// WithReader replaces the kafka-go reader, mainly for tests.
func WithReader(r Reader) Option {
	return func(s *Source) {
		if r != nil {
			s.reader = r
		}
	}
}

// WithRetryDelay sets the pause after a failed fetch.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithLogger sets a custom logger for the source.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}
