package lock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/clock"
	"parkline/pkg/metrics"
	"parkline/pkg/model"

	"github.com/google/uuid"
)

const (
	KeyPrefix = "parkline:lock:pool:"

	defaultMinRetry = 10 * time.Millisecond
	defaultMaxRetry = 50 * time.Millisecond
)

// Locker serialises allocation per resource pool.
type Locker interface {
	// Acquire blocks until the pool lock is held or timeout elapses (ErrLockTimeout).
	Acquire(ctx context.Context, poolID string, timeout, ttl time.Duration) (*model.LockHandle, error)
	// Release deletes the lock only when token still owns it.
	Release(ctx context.Context, poolID, token string) (bool, error)
}

type options struct {
	clock    clock.Clock
	minRetry time.Duration
	maxRetry time.Duration
	prefix   string
}

type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithRetryInterval bounds the jittered sleep between acquisition attempts.
func WithRetryInterval(minRetry, maxRetry time.Duration) Option {
	return func(o *options) {
		if minRetry > 0 && maxRetry >= minRetry {
			o.minRetry = minRetry
			o.maxRetry = maxRetry
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		clock:    clock.Real{},
		minRetry: defaultMinRetry,
		maxRetry: defaultMaxRetry,
		prefix:   KeyPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) key(poolID string) string {
	return o.prefix + poolID
}

func (o options) jitter() time.Duration {
	span := o.maxRetry - o.minRetry
	if span <= 0 {
		return o.minRetry
	}
	return o.minRetry + rand.N(span)
}

// tryFunc makes one atomic set-if-absent attempt.
type tryFunc func(ctx context.Context, handle *model.LockHandle, ttl time.Duration) (bool, error)

func acquire(ctx context.Context, o options, backend, poolID string, timeout, ttl time.Duration, try tryFunc) (*model.LockHandle, error) {
	if poolID == "" {
		return nil, fmt.Errorf("pool id is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}

	started := time.Now()
	deadline := started.Add(timeout)
	token := uuid.NewString()

	for {
		now := o.clock.Now()
		handle := &model.LockHandle{
			Key:       o.key(poolID),
			Token:     token,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}

		ok, err := try(ctx, handle, ttl)
		if err != nil {
			metrics.ObserveLockWait(backend, "error", time.Since(started))
			return nil, fmt.Errorf("failed to acquire lock for pool %s: %w", poolID, err)
		}
		if ok {
			metrics.ObserveLockWait(backend, "acquired", time.Since(started))
			return handle, nil
		}

		wait := o.jitter()
		if remaining := time.Until(deadline); remaining <= 0 {
			metrics.ObserveLockWait(backend, "timeout", time.Since(started))
			return nil, fmt.Errorf("pool %s: %w", poolID, reserrors.ErrLockTimeout)
		} else if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.ObserveLockWait(backend, "cancelled", time.Since(started))
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// releaseContext keeps release alive when the caller's context was cancelled mid-transaction.
func releaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
}
