package dedupe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/aggregator/internal/domain/model"
)

// memoryStore keeps records in a map guarded by a RW mutex.
// Records live until the process exits.
type memoryStore struct {
	mu      sync.RWMutex
	records map[model.Key]model.Record
	topics  map[string]int
	closed  bool
}

// NewMemoryStore creates an in-memory Store. It is not durable and is meant
// for tests and ephemeral runs.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[model.Key]model.Record),
		topics:  make(map[string]int),
	}
}

func (m *memoryStore) Exists(_ context.Context, topic, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, fmt.Errorf("%w: %w", ErrStore, ErrClosed)
	}
	_, ok := m.records[model.Key{Topic: topic, EventID: eventID}]
	return ok, nil
}

// AddIfNew checks and inserts under one write lock.
func (m *memoryStore) AddIfNew(_ context.Context, rec model.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, fmt.Errorf("%w: %w", ErrStore, ErrClosed)
	}

	key := rec.Key()
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	m.records[key] = rec
	m.topics[rec.Topic]++
	return true, nil
}

func (m *memoryStore) ListByTopic(_ context.Context, topic string) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: %w", ErrStore, ErrClosed)
	}

	capacity := len(m.records)
	if topic != "" {
		capacity = m.topics[topic]
	}
	out := make([]model.Record, 0, capacity)
	for k, rec := range m.records {
		if topic == "" || k.Topic == topic {
			out = append(out, rec)
		}
	}
	SortRecords(out)
	return out, nil
}

func (m *memoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, fmt.Errorf("%w: %w", ErrStore, ErrClosed)
	}
	return len(m.records), nil
}

func (m *memoryStore) Topics(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: %w", ErrStore, ErrClosed)
	}
	out := make([]string, 0, len(m.topics))
	for t := range m.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
