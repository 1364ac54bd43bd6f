package model

import "errors"

var (
	// ErrInvalidEvent is returned when an event fails boundary validation.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrPayloadEncoding is returned when a payload cannot be serialized to JSON.
	ErrPayloadEncoding = errors.New("payload is not JSON-serializable")
)
