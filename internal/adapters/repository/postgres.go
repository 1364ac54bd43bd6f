package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS processed (
	topic     TEXT NOT NULL,
	event_id  TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	source    TEXT NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (topic, event_id)
)`

const postgresIndex = `CREATE INDEX IF NOT EXISTS processed_topic_timestamp ON processed (topic, timestamp)`

// PostgresStore keeps records in PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ dedupe.Store = (*PostgresStore)(nil)

// NewPostgresStore connects, pings and creates the schema.
func NewPostgresStore(ctx context.Context, opts ...Option) (*PostgresStore, error) {
	o := newOptions(opts)
	if o.postgresDSN == "" {
		return nil, ErrMissingDSN
	}

	cfg, err := pgxpool.ParseConfig(o.postgresDSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %w", dedupe.ErrStore, err)
	}
	cfg.MaxConns = int32(o.maxOpenConns) //nolint:gosec // bounded by config validation

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %w", dedupe.ErrStore, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", dedupe.ErrStore, err)
	}
	for _, stmt := range []string{postgresSchema, postgresIndex} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%w: create schema: %w", dedupe.ErrStore, err)
		}
	}

	o.logger.Info(ctx, "postgres store opened", logger.Int("max_conns", o.maxOpenConns))
	return &PostgresStore{pool: pool, logger: o.logger}, nil
}

func (s *PostgresStore) Exists(ctx context.Context, topic, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed WHERE topic = $1 AND event_id = $2)`, topic, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: exists: %w", dedupe.ErrStore, err)
	}
	return exists, nil
}

// AddIfNew returns true only when the insert affected a row.
func (s *PostgresStore) AddIfNew(ctx context.Context, rec model.Record) (bool, error) {
	const query = `
		INSERT INTO processed (topic, event_id, timestamp, source, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (topic, event_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, rec.Topic, rec.EventID, rec.Timestamp, rec.Source, string(rec.Payload))
	if err != nil {
		return false, fmt.Errorf("%w: insert: %w", dedupe.ErrStore, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListByTopic(ctx context.Context, topic string) ([]model.Record, error) {
	query := `SELECT topic, event_id, timestamp, source, payload FROM processed
		ORDER BY topic, timestamp, event_id`
	args := []any{}
	if topic != "" {
		query = `SELECT topic, event_id, timestamp, source, payload FROM processed
			WHERE topic = $1 ORDER BY timestamp, event_id`
		args = append(args, topic)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", dedupe.ErrStore, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", dedupe.ErrStore, err)
	}
	return n, nil
}

func (s *PostgresStore) Topics(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT topic FROM processed ORDER BY topic`)
	if err != nil {
		return nil, fmt.Errorf("%w: topics: %w", dedupe.ErrStore, err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
