package storage

import "errors"

// Sentinel errors shared by every store implementation. Units and reports
// are write-once rows, so a key collision is a distinct condition callers
// frequently tolerate (rerunning an analysis over the same snapshot) and
// must be detectable with errors.Is.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with a stored
	// row. Rows are immutable; there is no upsert path.
	ErrDuplicateKey = errors.New("duplicate key: rows are write-once")

	// ErrInvalidInput is returned for rows the schema cannot key.
	ErrInvalidInput = errors.New("invalid input")
)
