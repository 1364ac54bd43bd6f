package dedupe

import "errors"

var (
	// ErrStore wraps every storage failure that is not a uniqueness outcome.
	ErrStore = errors.New("dedup store failure")
	// ErrClosed is returned by a store used after Close.
	ErrClosed = errors.New("dedup store closed")
)
