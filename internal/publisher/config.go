// Package publisher generates event load with a controlled share of
// duplicates, sends it to the aggregator and checks that the counters moved
// by exactly the expected amounts.
package publisher

import (
	"fmt"
	"strings"
	"time"
)

// Run modes.
const (
	ModeOneShot    = "one-shot"
	ModeContinuous = "continuous"
)

// Config holds configuration for a publishing run.
type Config struct {
	BaseURL       string        // Base URL of the aggregator
	Events        int           // Events per cycle, duplicates included
	DuplicateRate float64       // Share of Events that reuse an earlier id
	BatchSize     int           // Events per POST /publish
	Workers       int           // Concurrent senders
	Topic         string        // Topic of every generated event
	Source        string        // Source of every generated event
	Timeout       time.Duration // Per request timeout
	Retries       int           // Retries per request
	DrainTimeout  time.Duration // How long to wait for the counters to settle
	Mode          string        // one-shot or continuous
	Interval      time.Duration // Pause between continuous cycles
	Verify        bool          // Check counter deltas after each cycle
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8080",
		Events:        1000,
		DuplicateRate: 0.2,
		BatchSize:     100,
		Workers:       4,
		Topic:         "demo",
		Source:        "publisher",
		Timeout:       10 * time.Second,
		Retries:       3,
		DrainTimeout:  30 * time.Second,
		Mode:          ModeOneShot,
		Interval:      5 * time.Second,
		Verify:        true,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	case c.Events <= 0:
		return fmt.Errorf("%w: events must be positive", ErrInvalidConfig)
	case c.DuplicateRate < 0 || c.DuplicateRate >= 1:
		return fmt.Errorf("%w: duplicate rate must be in [0, 1)", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.Topic) == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	case strings.TrimSpace(c.Source) == "":
		return fmt.Errorf("%w: source is required", ErrInvalidConfig)
	case c.Mode != ModeOneShot && c.Mode != ModeContinuous:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	return nil
}
