// Package queue implements the hand-off buffer between ingestion and the consumer.
//
// The queue is unbounded: Push never blocks and never drops. Pop waits for a
// bounded time so the consumer can observe a stop request between waits.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultInitialCapacity  = 1024
	defaultCompactThreshold = 4096
)

// Event represents the payload type flowing through the queue.
type Event = model.Event

// Queue provides non-blocking push and bounded-wait pop in FIFO order.
type Queue interface {
	// Push appends an event. It fails only with ErrClosed.
	Push(ctx context.Context, e Event) error

	// Pop removes the oldest event, waiting up to wait for one to arrive.
	// It returns false on timeout, context cancellation, or when the queue
	// is closed and empty.
	Pop(ctx context.Context, wait time.Duration) (Event, bool)

	// Len returns the current number of queued events.
	Len() int

	// Close stops accepting pushes. Queued events can still be popped.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a mutex-guarded slice and a one-slot
// notification channel.
type InMemoryQueue struct {
	initialCapacity  int
	compactThreshold int

	mu     sync.Mutex
	items  []Event
	head   int
	closed bool

	notify chan struct{}
	done   chan struct{}
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		initialCapacity:  defaultInitialCapacity,
		compactThreshold: defaultCompactThreshold,
		notify:           make(chan struct{}, 1),
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.items = make([]Event, 0, q.initialCapacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Push appends e to the tail of the queue.
func (q *InMemoryQueue) Push(_ context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is stored by value
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	q.items = append(q.items, e)
	size := len(q.items) - q.head
	q.mu.Unlock()

	q.signal()
	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueSize(size)
	return nil
}

// Pop removes the head of the queue, waiting up to wait for an event.
// A non-positive wait makes Pop non-blocking.
func (q *InMemoryQueue) Pop(ctx context.Context, wait time.Duration) (Event, bool) {
	if e, ok := q.tryPop(); ok {
		return e, true
	}
	if wait <= 0 {
		return Event{}, false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		if q.IsClosed() {
			// Drain whatever raced in before Close.
			return q.tryPop()
		}
		select {
		case <-q.notify:
			if e, ok := q.tryPop(); ok {
				return e, true
			}
		case <-q.done:
		case <-ctx.Done():
			return Event{}, false
		case <-timer.C:
			return q.tryPop()
		}
	}
}

func (q *InMemoryQueue) tryPop() (Event, bool) {
	q.mu.Lock()
	if q.head == len(q.items) {
		q.mu.Unlock()
		return Event{}, false
	}

	e := q.items[q.head]
	q.items[q.head] = Event{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= q.compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	size := len(q.items) - q.head
	q.mu.Unlock()

	if size > 0 {
		// Keep the wakeup alive for any other waiter.
		q.signal()
	}
	metrics.RecordQueueDequeue()
	metrics.UpdateQueueSize(size)
	return e, true
}

func (q *InMemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close stops accepting new events. It is safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
