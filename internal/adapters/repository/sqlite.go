package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/aggregator/internal/domain/dedupe"
	"github.com/okian/aggregator/internal/domain/model"
	"github.com/okian/aggregator/pkg/logger"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS processed (
	topic     TEXT NOT NULL,
	event_id  TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	source    TEXT NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (topic, event_id)
)`

const sqliteIndex = `CREATE INDEX IF NOT EXISTS processed_topic_timestamp ON processed (topic, timestamp)`

// SQLiteStore is the default embedded, durable backend. One pooled handle is
// shared by all callers; uniqueness comes from the primary key.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

var _ dedupe.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database file and its schema.
func NewSQLiteStore(ctx context.Context, opts ...Option) (*SQLiteStore, error) {
	o := newOptions(opts)

	if dir := filepath.Dir(o.sqlitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %w", dedupe.ErrStore, err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeout.Milliseconds()))
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + o.sqlitePath + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", dedupe.ErrStore, err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxOpenConns)

	for _, stmt := range []string{sqliteSchema, sqliteIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: create schema: %w", dedupe.ErrStore, err)
		}
	}

	o.logger.Info(ctx, "sqlite store opened",
		logger.String("path", o.sqlitePath),
		logger.Int("max_open_conns", o.maxOpenConns),
	)
	return &SQLiteStore{db: db, logger: o.logger}, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, topic, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed WHERE topic = ? AND event_id = ?`, topic, eventID,
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: exists: %w", dedupe.ErrStore, err)
	}
	return true, nil
}

// AddIfNew relies on ON CONFLICT DO NOTHING; one row affected means this call won.
func (s *SQLiteStore) AddIfNew(ctx context.Context, rec model.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed (topic, event_id, timestamp, source, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (topic, event_id) DO NOTHING`,
		rec.Topic, rec.EventID, rec.Timestamp, rec.Source, string(rec.Payload),
	)
	if err != nil {
		return false, fmt.Errorf("%w: insert: %w", dedupe.ErrStore, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %w", dedupe.ErrStore, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListByTopic(ctx context.Context, topic string) ([]model.Record, error) {
	query := `SELECT topic, event_id, timestamp, source, payload FROM processed
		ORDER BY topic, timestamp, event_id`
	args := []any{}
	if topic != "" {
		query = `SELECT topic, event_id, timestamp, source, payload FROM processed
			WHERE topic = ? ORDER BY timestamp, event_id`
		args = append(args, topic)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", dedupe.ErrStore, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", dedupe.ErrStore, err)
	}
	return n, nil
}

func (s *SQLiteStore) Topics(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT topic FROM processed ORDER BY topic`)
	if err != nil {
		return nil, fmt.Errorf("%w: topics: %w", dedupe.ErrStore, err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner is the subset of *sql.Rows and pgx.Rows used by the scanners.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]model.Record, error) {
	var out []model.Record
	for rows.Next() {
		var (
			rec     model.Record
			payload string
		)
		if err := rows.Scan(&rec.Topic, &rec.EventID, &rec.Timestamp, &rec.Source, &payload); err != nil {
			return nil, fmt.Errorf("%w: scan record: %w", dedupe.ErrStore, err)
		}
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %w", dedupe.ErrStore, err)
	}
	return out, nil
}

func scanStrings(rows rowScanner) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", dedupe.ErrStore, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %w", dedupe.ErrStore, err)
	}
	return out, nil
}
