package worker

import "errors"

// ErrPanic wraps a panic recovered while processing one event.
var ErrPanic = errors.New("panic while processing event")
