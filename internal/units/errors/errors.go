package errors

import "errors"

var (
	ErrNotFound = errors.New("resource unit not found")

	ErrVersionConflict = errors.New("resource unit version changed concurrently")

	ErrInvalidTransition = errors.New("unit status transition not allowed")

	ErrUnitBusy = errors.New("unit is reserved or occupied")
)
