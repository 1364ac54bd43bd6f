// Package repository provides the durable dedupe.Store backends.
package repository

import (
	"time"

	"github.com/okian/aggregator/pkg/logger"
)

// Default backend configuration constants.
const (
	defaultSQLitePath   = "data/aggregator.db"
	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 8
	defaultRedisAddr    = "localhost:6379"
	defaultRedisPrefix  = "aggregator"
)

type options struct {
	sqlitePath   string
	busyTimeout  time.Duration
	maxOpenConns int

	postgresDSN string

	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string

	logger logger.Logger
}

func newOptions(opts []Option) options {
	o := options{
		sqlitePath:   defaultSQLitePath,
		busyTimeout:  defaultBusyTimeout,
		maxOpenConns: defaultMaxOpenConns,
		redisAddr:    defaultRedisAddr,
		redisPrefix:  defaultRedisPrefix,
		logger:       logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a store backend.
type Option func(*options)

// WithSQLitePath sets the database file used by the sqlite backend.
func WithSQLitePath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.sqlitePath = path
		}
	}
}

// WithBusyTimeout sets how long sqlite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithMaxOpenConns caps the pooled connections of SQL backends.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithPostgresDSN sets the connection string of the postgres backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *options) {
		o.postgresDSN = dsn
	}
}

// WithRedisAddr sets the redis server address.
func WithRedisAddr(addr string) Option {
	return func(o *options) {
		if addr != "" {
			o.redisAddr = addr
		}
	}
}

// WithRedisPassword sets the redis password.
func WithRedisPassword(password string) Option {
	return func(o *options) {
		o.redisPassword = password
	}
}

// WithRedisDB selects the redis logical database.
func WithRedisDB(db int) Option {
	return func(o *options) {
		if db >= 0 {
			o.redisDB = db
		}
	}
}

// WithRedisPrefix namespaces every redis key.
func WithRedisPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.redisPrefix = prefix
		}
	}
}

// WithLogger sets a custom logger for the backend.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
