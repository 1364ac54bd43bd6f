package dedupe

import (
	"context"
	"fmt"
	"sync"

	"github.com/willf/bloom"

	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
	"github.com/okian/aggregator/pkg/metrics"
)

// Filtered wraps a Store with a bloom filter that answers negative Exists
// lookups without touching the inner store. AddIfNew always reaches the inner
// store; the filter is never part of the uniqueness decision.
type Filtered struct {
	Store

	capacity uint
	fpRate   float64
	logger   logger.Logger

	mu     sync.Mutex
	filter *bloom.BloomFilter
}

// NewFiltered builds the filter and warms it with every key already stored,
// so a durable store reopened after restart never yields a false negative.
func NewFiltered(ctx context.Context, inner Store, opts ...FilterOption) (*Filtered, error) {
	f := &Filtered{
		Store:    inner,
		capacity: 100_000,
		fpRate:   0.01,
		logger:   logger.Get().Named("dedupe-filter"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.filter = bloom.NewWithEstimates(f.capacity, f.fpRate)

	existing, err := inner.ListByTopic(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("warm bloom filter: %w", err)
	}
	for _, rec := range existing {
		f.filter.Add(filterKey(rec.Topic, rec.EventID))
	}
	f.logger.Info(ctx, "bloom filter ready",
		logger.Int("warmed", len(existing)),
		logger.Int("capacity", int(f.capacity)),
		logger.Float64("fp_rate", f.fpRate),
	)
	return f, nil
}

// Exists returns false without a store round-trip when the filter has never
// seen the key.
func (f *Filtered) Exists(ctx context.Context, topic, eventID string) (bool, error) {
	f.mu.Lock()
	maybe := f.filter.Test(filterKey(topic, eventID))
	f.mu.Unlock()
	if !maybe {
		metrics.RecordFilterShortCircuit()
		return false, nil
	}
	return f.Store.Exists(ctx, topic, eventID)
}

// AddIfNew delegates to the inner store and remembers the key when it is
// known to be present afterwards.
func (f *Filtered) AddIfNew(ctx context.Context, rec model.Record) (bool, error) {
	added, err := f.Store.AddIfNew(ctx, rec)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	f.filter.Add(filterKey(rec.Topic, rec.EventID))
	f.mu.Unlock()
	return added, nil
}

func filterKey(topic, eventID string) []byte {
	b := make([]byte, 0, len(topic)+len(eventID)+1)
	b = append(b, topic...)
	b = append(b, 0)
	b = append(b, eventID...)
	return b
}
