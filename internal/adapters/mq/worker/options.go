package worker

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/okian/aggregator/pkg/logger"
)

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithName sets the consumer name for identification and logging.
func WithName(name string) Option {
	return func(c *Consumer) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets a custom logger for the consumer.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSink sets the post-acceptance sink. Without one, processing is a no-op.
func WithSink(s Sink) Option {
	return func(c *Consumer) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithPollInterval sets the bounded wait of each queue pop.
func WithPollInterval(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxRetries sets how many times a failed delivery is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Consumer) {
		c.maxRetries = n
	}
}

// WithBackOff sets the retry schedule factory, called once per event.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Consumer) {
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}
