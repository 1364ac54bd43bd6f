// Package ingest orchestrates the per-event ingestion pipeline:
// validate, encode, atomically record, count, enqueue.
package ingest

import (
	"context"

	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/internal/domain/stats"
	"github.com/okian/aggregator/pkg/logger"
	"github.com/okian/aggregator/pkg/metrics"
)

// Enqueuer hands accepted events to asynchronous processing.
type Enqueuer interface {
	Push(ctx context.Context, e model.Event) error
}

// Result summarizes one Publish call.
type Result struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Invalid    int `json:"invalid,omitempty"`
}

// Add folds other into r.
func (r *Result) Add(other Result) {
	r.Accepted += other.Accepted
	r.Duplicates += other.Duplicates
	r.Failed += other.Failed
	r.Invalid += other.Invalid
}

// Gateway admits events into the system. It never blocks on the consumer.
type Gateway struct {
	store    dedupe.Store
	queue    Enqueuer
	counters *stats.Counters
	logger   logger.Logger
}

// NewGateway creates a gateway over the given store, queue and counters.
func NewGateway(store dedupe.Store, q Enqueuer, counters *stats.Counters, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		queue:    q,
		counters: counters,
		logger:   logger.Get().Named("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Publish processes events in order. Each event is handled independently:
// a failure on one never aborts its siblings.
func (g *Gateway) Publish(ctx context.Context, events []model.Event) Result {
	var res Result
	for i := range events {
		switch g.publishOne(ctx, &events[i]) {
		case outcomeAccepted:
			res.Accepted++
		case outcomeDuplicate:
			res.Duplicates++
		case outcomeFailed:
			res.Failed++
		case outcomeInvalid:
			res.Invalid++
		}
	}
	return res
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeFailed
	outcomeInvalid
)

func (g *Gateway) publishOne(ctx context.Context, e *model.Event) outcome {
	if err := e.Validate(); err != nil {
		metrics.RecordErrorByComponent("gateway", "invalid_event")
		g.logger.Debug(ctx, "rejecting invalid event", logger.Error(err))
		return outcomeInvalid
	}

	g.counters.IncReceived()

	rec, err := e.ToRecord()
	if err != nil {
		g.counters.IncPayloadRejected()
		g.logger.Warn(ctx, "payload rejected",
			logger.String("topic", e.Topic),
			logger.String("eventID", e.EventID),
			logger.Error(err),
		)
		return outcomeDuplicate
	}

	added, err := g.store.AddIfNew(ctx, rec)
	if err != nil {
		g.counters.IncStoreFailed()
		metrics.RecordErrorByComponent("gateway", "store_failed")
		g.logger.Error(ctx, "store insert failed",
			logger.String("topic", e.Topic),
			logger.String("eventID", e.EventID),
			logger.Error(err),
		)
		return outcomeFailed
	}
	if !added {
		g.counters.IncDuplicate()
		return outcomeDuplicate
	}

	metrics.RecordEventAccepted()
	if err := g.queue.Push(ctx, *e); err != nil {
		// The record is already durable, so a resubmission would be a
		// duplicate. Surface it as a failure instead of losing it silently.
		g.counters.IncEnqueueFailed()
		g.logger.Error(ctx, "accepted event could not be queued",
			logger.String("topic", e.Topic),
			logger.String("eventID", e.EventID),
			logger.Error(err),
		)
		return outcomeFailed
	}
	return outcomeAccepted
}
