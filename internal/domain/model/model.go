// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical fixed-width text form of an event timestamp.
// Every backend stores this form so lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Event is a single externally produced event.
// Identity is (Topic, EventID).
type Event struct {
	Topic     string         `json:"topic"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// Key identifies an event within the store.
type Key struct {
	Topic   string
	EventID string
}

// Key returns the deduplication key of the event.
func (e Event) Key() Key {
	return Key{Topic: e.Topic, EventID: e.EventID}
}

// String renders the key as topic/event_id for logs.
func (k Key) String() string {
	return k.Topic + "/" + k.EventID
}

// Validate checks the boundary rules an event must satisfy before it reaches
// the gateway. All violations are reported together.
func (e Event) Validate() error {
	var problems []string
	if strings.TrimSpace(e.Topic) == "" {
		problems = append(problems, "topic is required")
	}
	if strings.TrimSpace(e.EventID) == "" {
		problems = append(problems, "event_id is required")
	}
	if strings.TrimSpace(e.Source) == "" {
		problems = append(problems, "source is required")
	}
	if e.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(problems, "; "))
	}
	return nil
}

// Record is the persisted, immutable form of an accepted event.
type Record struct {
	Topic     string          `json:"topic"`
	EventID   string          `json:"event_id"`
	Timestamp string          `json:"timestamp"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

// Key returns the deduplication key of the record.
func (r Record) Key() Key {
	return Key{Topic: r.Topic, EventID: r.EventID}
}

// CanonicalTimestamp renders t in UTC using TimestampLayout.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// EncodePayload serializes a payload to its stored JSON document.
// A nil payload is stored as an empty object.
func EncodePayload(p map[string]any) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadEncoding, err)
	}
	return b, nil
}

// ToRecord normalizes the timestamp and serializes the payload.
func (e Event) ToRecord() (Record, error) {
	payload, err := EncodePayload(e.Payload)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Topic:     e.Topic,
		EventID:   e.EventID,
		Timestamp: CanonicalTimestamp(e.Timestamp),
		Source:    e.Source,
		Payload:   payload,
	}, nil
}
