// Package config defines service configuration structures and loading hooks.
//
// Values are layered: defaults from New, then an optional YAML file named by
// AGGREGATOR_CONFIG, then AGGREGATOR_* environment variables.
package config

import (
	"fmt"
	"strings"
)

// Supported values for StoreDriver. They match repository.Drivers().
var storeDrivers = []string{"sqlite", "postgres", "redis", "memory"}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the dedupe store backend.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// PostgresDSN is required by the postgres driver.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisAddr and RedisDB address the redis driver.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	// RedisPrefix namespaces every key the redis driver writes.
	RedisPrefix string `koanf:"redis_prefix"`

	// BloomCapacity enables the advisory bloom filter when positive.
	BloomCapacity int     `koanf:"bloom_capacity"`
	BloomFPRate   float64 `koanf:"bloom_fp_rate"`

	// ConsumerPollMS bounds each queue wait, and therefore shutdown latency.
	ConsumerPollMS     int `koanf:"consumer_poll_ms"`
	ConsumerMaxRetries int `koanf:"consumer_max_retries"`

	// KafkaBrokers is a comma separated list. Empty disables the Kafka source.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`
	KafkaGroupID string `koanf:"kafka_group_id"`

	// ElasticURL enables the Elasticsearch sink when set.
	ElasticURL   string `koanf:"elastic_url"`
	ElasticIndex string `koanf:"elastic_index"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8080",
		StoreDriver:        "sqlite",
		SQLitePath:         "data/aggregator.db",
		RedisAddr:          "localhost:6379",
		RedisPrefix:        "aggregator",
		BloomCapacity:      0,
		BloomFPRate:        0.01,
		ConsumerPollMS:     1000,
		ConsumerMaxRetries: 3,
		KafkaTopic:         "events",
		KafkaGroupID:       "aggregator",
		ElasticIndex:       "events",
	}
}

// Brokers splits KafkaBrokers, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}

	driver := strings.ToLower(c.StoreDriver)
	known := false
	for _, d := range storeDrivers {
		if driver == d {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if driver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("%w: postgres_dsn is required for the postgres driver", ErrInvalidConfig)
	}

	if c.BloomCapacity < 0 {
		return fmt.Errorf("%w: bloom_capacity must not be negative", ErrInvalidConfig)
	}
	if c.BloomFPRate <= 0 || c.BloomFPRate >= 1 {
		return fmt.Errorf("%w: bloom_fp_rate must be in (0, 1)", ErrInvalidConfig)
	}
	if c.ConsumerPollMS <= 0 {
		return fmt.Errorf("%w: consumer_poll_ms must be positive", ErrInvalidConfig)
	}
	if c.ConsumerMaxRetries < 0 {
		return fmt.Errorf("%w: consumer_max_retries must not be negative", ErrInvalidConfig)
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic is required when kafka_brokers is set", ErrInvalidConfig)
	}
	return nil
}
