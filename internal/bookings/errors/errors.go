package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrOverlap = errors.New("booking window overlaps an existing booking on the unit")

	ErrDuplicateRequest = errors.New("a booking already exists for this reservation request")

	ErrInvalidTransition = errors.New("booking status transition not allowed")
)
