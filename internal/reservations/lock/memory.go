package lock

import (
	"context"
	"sync"
	"time"

	"parkline/pkg/model"
)

// MemoryLocker is a process-local Locker for single-node deployments and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]model.LockHandle
	opts options
}

func NewMemoryLocker(opts ...Option) *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]model.LockHandle),
		opts: newOptions(opts),
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, poolID string, timeout, ttl time.Duration) (*model.LockHandle, error) {
	return acquire(ctx, l.opts, "memory", poolID, timeout, ttl, func(_ context.Context, h *model.LockHandle, _ time.Duration) (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[h.Key]; ok && !cur.Expired(h.CreatedAt) {
			return false, nil
		}
		l.held[h.Key] = *h
		return true, nil
	})
}

func (l *MemoryLocker) Release(_ context.Context, poolID, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := l.opts.key(poolID)
	cur, ok := l.held[key]
	if !ok || cur.Token != token {
		return false, nil
	}
	delete(l.held, key)
	return !cur.Expired(l.opts.clock.Now()), nil
}

func (l *MemoryLocker) Ping(context.Context) error {
	return nil
}
