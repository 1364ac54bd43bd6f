package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/metrics"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Drivers lists every accepted driver name.
func Drivers() []string {
	return []string{DriverSQLite, DriverPostgres, DriverRedis, DriverMemory}
}

// Open builds the store for driver and wraps it with latency instrumentation.
func Open(ctx context.Context, driver string, opts ...Option) (dedupe.Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))

	var (
		store dedupe.Store
		err   error
	)
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		store, err = NewSQLiteStore(ctx, opts...)
	case DriverPostgres:
		store, err = NewPostgresStore(ctx, opts...)
	case DriverRedis:
		store, err = NewRedisStore(ctx, opts...)
	case DriverMemory:
		store = dedupe.NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(store, driver), nil
}

// instrumented records per-operation latency of the wrapped store.
type instrumented struct {
	dedupe.Store
	backend string
}

// Instrument wraps store so every operation is timed under the backend label.
func Instrument(store dedupe.Store, backend string) dedupe.Store {
	return &instrumented{Store: store, backend: backend}
}

func (s *instrumented) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(s.backend, op, float64(time.Since(start).Microseconds())/1000)
}

func (s *instrumented) Exists(ctx context.Context, topic, eventID string) (bool, error) {
	defer s.observe("exists", time.Now())
	return s.Store.Exists(ctx, topic, eventID)
}

func (s *instrumented) AddIfNew(ctx context.Context, rec model.Record) (bool, error) {
	defer s.observe("add_if_new", time.Now())
	return s.Store.AddIfNew(ctx, rec)
}

func (s *instrumented) ListByTopic(ctx context.Context, topic string) ([]model.Record, error) {
	defer s.observe("list_by_topic", time.Now())
	return s.Store.ListByTopic(ctx, topic)
}

func (s *instrumented) Count(ctx context.Context) (int, error) {
	defer s.observe("count", time.Now())
	n, err := s.Store.Count(ctx)
	if err == nil {
		metrics.UpdateStoreRecords(n)
	}
	return n, err
}

func (s *instrumented) Topics(ctx context.Context) ([]string, error) {
	defer s.observe("topics", time.Now())
	return s.Store.Topics(ctx)
}
