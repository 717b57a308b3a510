package repository

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotUpdated is returned by conditional writes when the expected
	// current state no longer holds (e.g. a claim lost the race).
	ErrNotUpdated = errors.New("record not in expected state")

	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)
