// Package worker implements the single consumer that drains the processing queue.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
	"github.com/okian/aggregator/pkg/metrics"
)

// Default consumer configuration constants.
const (
	defaultPollInterval = time.Second
	defaultMaxRetries   = 3
)

// Queue is the part of the processing queue the consumer reads from.
type Queue interface {
	Pop(ctx context.Context, wait time.Duration) (model.Event, bool)
}

// Counter receives the consumer's outcomes.
type Counter interface {
	IncProcessed()
	IncProcessingFailed()
}

// Sink is optional post-acceptance work performed for each event.
type Sink interface {
	Deliver(ctx context.Context, e model.Event) error
}

// Consumer drains the queue one event at a time, in push order.
type Consumer struct {
	queue    Queue
	counters Counter
	sink     Sink
	name     string

	pollInterval time.Duration
	maxRetries   uint64
	newBackOff   func() backoff.BackOff

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewConsumer creates a consumer reading from q and reporting to counters.
func NewConsumer(q Queue, counters Counter, opts ...Option) *Consumer {
	c := &Consumer{
		queue:        q,
		counters:     counters,
		name:         "consumer",
		pollInterval: defaultPollInterval,
		maxRetries:   defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.Get().Named("consumer"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.name != "consumer" {
		c.logger = c.logger.Named(c.name)
	}

	return c
}

// Run drains the queue until Stop is called or ctx is canceled. It must be
// called at most once; later calls return immediately.
func (c *Consumer) Run(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	defer close(c.done)

	// Waits are interrupted by Stop; an event already popped is finished
	// with the caller's context.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	c.logger.Info(ctx, "consumer started",
		logger.Duration("poll_interval", c.pollInterval),
		logger.Bool("sink", c.sink != nil),
	)

	for {
		if waitCtx.Err() != nil {
			c.logger.Info(ctx, "consumer stopped")
			return
		}
		event, ok := c.queue.Pop(waitCtx, c.pollInterval)
		if !ok {
			continue
		}
		c.processEvent(ctx, event)
	}
}

// Stop asks the loop to exit. It does not wait.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Shutdown stops the loop and waits for it to exit or for ctx to expire.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.Stop()
	if !c.started.Load() {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// processEvent performs post-acceptance work and always counts the event as
// processed afterwards, even if that work failed or panicked.
func (c *Consumer) processEvent(ctx context.Context, event model.Event) { //nolint:gocritic // hugeParam: Event is popped by value
	start := time.Now()
	defer func() {
		metrics.RecordConsumerLatency(float64(time.Since(start).Microseconds()) / 1000)
		c.counters.IncProcessed()
	}()

	if err := c.handle(ctx, event); err != nil {
		c.counters.IncProcessingFailed()
		metrics.RecordErrorByComponent("consumer", "processing_failed")
		c.logger.Error(ctx, "processing failed for event",
			logger.String("topic", event.Topic),
			logger.String("eventID", event.EventID),
			logger.Error(err),
		)
	}
}

func (c *Consumer) handle(ctx context.Context, event model.Event) (err error) { //nolint:gocritic // hugeParam
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordConsumerPanic()
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if c.sink == nil {
		return nil
	}

	attempts := 0
	deliver := func() error {
		attempts++
		return c.sink.Deliver(ctx, event)
	}
	onRetry := func(err error, wait time.Duration) {
		metrics.RecordConsumerRetry()
		c.logger.Debug(ctx, "retrying delivery",
			logger.String("eventID", event.EventID),
			logger.Int("attempt", attempts),
			logger.Duration("wait", wait),
			logger.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.RetryNotify(deliver, b, onRetry); err != nil {
		return fmt.Errorf("deliver after %d attempts: %w", attempts, err)
	}
	return nil
}
