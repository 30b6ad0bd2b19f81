package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to create a record
	// with an ID that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrVersionConflict is returned when an optimistic write loses the
	// version check. The caller should re-read and retry.
	ErrVersionConflict = errors.New("version conflict: strategy was modified concurrently")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
