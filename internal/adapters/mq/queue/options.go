// Package queue implements the hand-off buffer between ingestion and the consumer.
package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithInitialCapacity preallocates room for n events. The queue still grows
// without bound past it.
func WithInitialCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.initialCapacity = n
		}
	}
}

// WithCompactThreshold sets how many popped slots may accumulate at the head
// of the backing slice before it is compacted.
func WithCompactThreshold(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.compactThreshold = n
		}
	}
}
