// Package dedupe defines the durable idempotency store used at ingestion.
package dedupe

import (
	"context"
	"sort"

	"github.com/okian/aggregator/internal/domain/model"
)

// Store records accepted events keyed by (topic, event_id).
//
// AddIfNew is the only uniqueness decision in the system. Implementations
// must make it a single atomic operation: exactly one concurrent caller for a
// given key observes true.
type Store interface {
	// Exists reports whether a record with the key is present. Advisory only.
	Exists(ctx context.Context, topic, eventID string) (bool, error)

	// AddIfNew inserts rec if no record with the same key exists.
	// Returns (true, nil) when this call created the record and (false, nil)
	// for a duplicate. Storage failures wrap ErrStore.
	AddIfNew(ctx context.Context, rec model.Record) (bool, error)

	// ListByTopic returns records for topic ordered by timestamp then
	// event_id. An empty topic lists everything, ordered by topic first.
	ListByTopic(ctx context.Context, topic string) ([]model.Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Topics returns the distinct topics, sorted ascending.
	Topics(ctx context.Context) ([]string, error)

	Close() error
}

// SortRecords orders records by topic, canonical timestamp and event id.
func SortRecords(recs []model.Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.EventID < b.EventID
	})
}
