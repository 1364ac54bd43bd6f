package repository

import "errors"

// Sentinel kinds for store construction errors.
var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrMissingDSN    = errors.New("store connection string is required")
	ErrCorruptRecord = errors.New("stored record cannot be decoded")
)
