package errors

import (
	"context"
	"errors"

	uniterrors "parkline/internal/units/errors"
	"parkline/pkg/db/postgres"
)

var (
	ErrNotFound = errors.New("reservation request not found")

	ErrInvalidRequest = errors.New("invalid reservation request")

	ErrDuplicateRequest = errors.New("reservation request already submitted")

	ErrLockTimeout = errors.New("timed out acquiring pool lock")

	ErrLockLost = errors.New("pool lock expired before commit")

	ErrNoAvailability = errors.New("no conflict-free unit available")

	ErrExpired = errors.New("reservation request expired before processing")

	ErrVersionConflict = uniterrors.ErrVersionConflict

	ErrQueueClosed = errors.New("admission queue is stopped")

	ErrRequestCancelled = errors.New("reservation request cancelled before admission")
)

// Kind classifies an allocation outcome.
type Kind string

const (
	KindNone            Kind = ""
	KindValidation      Kind = "validation"
	KindLockTimeout     Kind = "lock_timeout"
	KindNoAvailability  Kind = "no_availability"
	KindExpired         Kind = "expired"
	KindStorageFailure  Kind = "storage_failure"
	KindVersionConflict Kind = "version_conflict"
	KindCancelled       Kind = "cancelled"
	KindContention      Kind = "contention"
	KindDuplicate       Kind = "duplicate"
)

// KindOf maps err onto the closed outcome taxonomy. Anything unrecognised is a storage failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidRequest):
		return KindValidation
	case errors.Is(err, ErrLockTimeout), errors.Is(err, ErrLockLost):
		return KindLockTimeout
	case errors.Is(err, ErrNoAvailability):
		return KindNoAvailability
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrVersionConflict):
		return KindVersionConflict
	case errors.Is(err, ErrDuplicateRequest):
		return KindDuplicate
	case errors.Is(err, ErrRequestCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case postgres.IsRetryable(err):
		return KindContention
	default:
		return KindStorageFailure
	}
}

// Retryable reports whether the worker may try the same request again.
func (k Kind) Retryable() bool {
	return k == KindLockTimeout || k == KindContention
}
