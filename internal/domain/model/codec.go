package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// naiveTimestampLayout accepts ISO-8601 values without an offset; they are
// read as UTC.
const naiveTimestampLayout = "2006-01-02T15:04:05.999999999"

// ParseTimestamp reads a producer timestamp. RFC 3339 is tried first, then a
// value without offset, which is taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(naiveTimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q; must be ISO-8601", ErrInvalidEvent, s)
	}
	return t, nil
}

// DecodePayload decodes a JSON object keeping numbers as json.Number, so the
// stored document carries the producer's digits unchanged. Empty input and
// null give a nil payload.
func DecodePayload(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var p map[string]any
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidEvent)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: payload must be a single JSON object", ErrInvalidEvent)
	}
	return p, nil
}

// UnmarshalJSON applies ParseTimestamp and DecodePayload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Topic     string          `json:"topic"`
		EventID   string          `json:"event_id"`
		Timestamp *string         `json:"timestamp"`
		Source    string          `json:"source"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	ev := Event{Topic: wire.Topic, EventID: wire.EventID, Source: wire.Source}
	if wire.Timestamp != nil && strings.TrimSpace(*wire.Timestamp) != "" {
		ts, err := ParseTimestamp(*wire.Timestamp)
		if err != nil {
			return err
		}
		ev.Timestamp = ts
	}
	payload, err := DecodePayload(wire.Payload)
	if err != nil {
		return err
	}
	ev.Payload = payload

	*e = ev
	return nil
}
