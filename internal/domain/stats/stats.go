// Package stats holds the process-wide ingestion counters.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/okian/aggregator/pkg/metrics"
)

// Counters is the explicitly owned set of running totals. The gateway mutates
// the ingestion side (received, duplicates, payload, store and enqueue
// failures); the consumer mutates unique_processed and processing_failed.
//
// At rest, with no store or enqueue failures:
// Received == UniqueProcessed + DuplicateDropped.
type Counters struct {
	startTime time.Time
	now       func() time.Time

	received         atomic.Int64
	uniqueProcessed  atomic.Int64
	duplicateDropped atomic.Int64
	payloadRejected  atomic.Int64
	storeFailed      atomic.Int64
	enqueueFailed    atomic.Int64
	processingFailed atomic.Int64
}

// Snapshot is a point-in-time copy of the counters. Fields are read one by
// one, so the copy is not transactionally consistent across fields.
type Snapshot struct {
	Received         int64
	UniqueProcessed  int64
	DuplicateDropped int64
	PayloadRejected  int64
	StoreFailed      int64
	EnqueueFailed    int64
	ProcessingFailed int64
	StartTime        time.Time
	Uptime           time.Duration
}

// Option applies a configuration option to Counters.
type Option func(*Counters)

// WithClock overrides the time source used for start time and uptime.
func WithClock(now func() time.Time) Option {
	return func(c *Counters) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates counters starting now.
func New(opts ...Option) *Counters {
	c := &Counters{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.startTime = c.now()
	return c
}

// IncReceived counts an event that reached the gateway.
func (c *Counters) IncReceived() {
	c.received.Add(1)
	metrics.RecordEventReceived()
}

// IncDuplicate counts an event rejected by the dedup check.
func (c *Counters) IncDuplicate() {
	c.duplicateDropped.Add(1)
	metrics.RecordEventDuplicate()
}

// IncPayloadRejected counts a serialization failure. It is folded into the
// duplicate counter as well so the reconciliation identity holds.
func (c *Counters) IncPayloadRejected() {
	c.payloadRejected.Add(1)
	metrics.RecordPayloadRejected()
	c.IncDuplicate()
}

// IncStoreFailed counts an insert that failed for a reason other than uniqueness.
func (c *Counters) IncStoreFailed() {
	c.storeFailed.Add(1)
	metrics.RecordStoreFailure()
}

// IncEnqueueFailed counts an accepted event the queue refused (shutdown race).
func (c *Counters) IncEnqueueFailed() {
	c.enqueueFailed.Add(1)
	metrics.RecordErrorByComponent("gateway", "enqueue_failed")
}

// IncProcessed counts an event the consumer finished handling.
func (c *Counters) IncProcessed() {
	c.uniqueProcessed.Add(1)
	metrics.RecordEventProcessed()
}

// IncProcessingFailed counts an event whose post-acceptance work failed.
func (c *Counters) IncProcessingFailed() {
	c.processingFailed.Add(1)
	metrics.RecordProcessingFailure()
}

// Received returns the current received count.
func (c *Counters) Received() int64 { return c.received.Load() }

// UniqueProcessed returns the current processed count.
func (c *Counters) UniqueProcessed() int64 { return c.uniqueProcessed.Load() }

// DuplicateDropped returns the current duplicate count.
func (c *Counters) DuplicateDropped() int64 { return c.duplicateDropped.Load() }

// StartTime returns when the counters were created.
func (c *Counters) StartTime() time.Time { return c.startTime }

// Uptime returns the time elapsed since StartTime.
func (c *Counters) Uptime() time.Duration { return c.now().Sub(c.startTime) }

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Received:         c.received.Load(),
		UniqueProcessed:  c.uniqueProcessed.Load(),
		DuplicateDropped: c.duplicateDropped.Load(),
		PayloadRejected:  c.payloadRejected.Load(),
		StoreFailed:      c.storeFailed.Load(),
		EnqueueFailed:    c.enqueueFailed.Load(),
		ProcessingFailed: c.processingFailed.Load(),
		StartTime:        c.startTime,
		Uptime:           c.Uptime(),
	}
}

// Reconciled reports whether every received event is accounted for as either
// processed or a duplicate.
func (s Snapshot) Reconciled() bool {
	return s.Received == s.UniqueProcessed+s.DuplicateDropped
}

// Report is the externally visible stats document. It combines a Snapshot
// with values only the store and queue know.
type Report struct {
	Received         int64    `json:"received"`
	UniqueProcessed  int64    `json:"unique_processed"`
	DuplicateDropped int64    `json:"duplicate_dropped"`
	UptimeSeconds    float64  `json:"uptime_seconds"`
	Topics           []string `json:"topics"`
	QueueLength      int      `json:"queue_length"`
	StoredEvents     int      `json:"stored_events"`
	PayloadRejected  int64    `json:"payload_rejected"`
	StoreFailed      int64    `json:"store_failed"`
	EnqueueFailed    int64    `json:"enqueue_failed"`
	ProcessingFailed int64    `json:"processing_failed"`
}

// Report builds the stats document. A nil topics slice is reported as empty.
func (s Snapshot) Report(topics []string, queueLength, storedEvents int) Report { //nolint:gocritic // hugeParam
	if topics == nil {
		topics = []string{}
	}
	return Report{
		Received:         s.Received,
		UniqueProcessed:  s.UniqueProcessed,
		DuplicateDropped: s.DuplicateDropped,
		UptimeSeconds:    s.Uptime.Seconds(),
		Topics:           topics,
		QueueLength:      queueLength,
		StoredEvents:     storedEvents,
		PayloadRejected:  s.PayloadRejected,
		StoreFailed:      s.StoreFailed,
		EnqueueFailed:    s.EnqueueFailed,
		ProcessingFailed: s.ProcessingFailed,
	}
}

// Reconciled reports whether every received event is accounted for.
func (r Report) Reconciled() bool { //nolint:gocritic // hugeParam
	return r.Received == r.UniqueProcessed+r.DuplicateDropped
}
