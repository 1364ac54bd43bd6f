package queue

import "errors"

// ErrClosed is returned by Push once the queue has been closed.
var ErrClosed = errors.New("queue closed")
