package persistence

import "errors"

var (
	// ErrNotFound is returned when no record matches the supplied key.
	ErrNotFound = errors.New("persistence: not found")
)
