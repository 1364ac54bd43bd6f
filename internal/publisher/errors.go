package publisher

import "errors"

// Sentinel errors for this package.
var (
	ErrInvalidConfig = errors.New("invalid publisher config")
	ErrNotReady      = errors.New("aggregator not ready")
	ErrUnexpected    = errors.New("unexpected response")
	ErrMismatch      = errors.New("counter mismatch")
	ErrDrainTimeout  = errors.New("counters did not settle")
)
