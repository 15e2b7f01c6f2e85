package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ──────────────────────────────────────────────────────────────────────────
// Redis backend
// ──────────────────────────────────────────────────────────────────────────

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, WithRetryInterval(time.Millisecond, 3*time.Millisecond)), mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	h, err := l.Acquire(ctx, "lot-a", time.Second, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, KeyPrefix+"lot-a", h.Key)
	assert.NotEmpty(t, h.Token)

	stored, err := mr.Get(KeyPrefix + "lot-a")
	require.NoError(t, err)
	assert.Equal(t, h.Token, stored)
	assert.Equal(t, 5*time.Second, mr.TTL(KeyPrefix+"lot-a"))

	released, err := l.Release(ctx, "lot-a", h.Token)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists(KeyPrefix+"lot-a"))
}

func TestRedisLocker_ReleaseWithWrongTokenKeepsLock(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	h, err := l.Acquire(ctx, "lot-a", time.Second, 5*time.Second)
	require.NoError(t, err)

	released, err := l.Release(ctx, "lot-a", "someone-else")
	require.NoError(t, err)
	assert.False(t, released)

	stored, err := mr.Get(KeyPrefix + "lot-a")
	require.NoError(t, err)
	assert.Equal(t, h.Token, stored)
}

func TestRedisLocker_TimeoutWhileHeld(t *testing.T) {
	l, _ := newRedisLocker(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, "lot-a", time.Second, 5*time.Second)
	require.NoError(t, err)

	started := time.Now()
	_, err = l.Acquire(ctx, "lot-a", 30*time.Millisecond, 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, reserrors.ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
}

func TestRedisLocker_PoolsAreIndependent(t *testing.T) {
	l, _ := newRedisLocker(t)
	ctx := context.Background()

	_, err := l.Acquire(ctx, "lot-a", time.Second, 5*time.Second)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "lot-b", 10*time.Millisecond, 5*time.Second)
	assert.NoError(t, err)
}

func TestRedisLocker_ExpiresAfterTTLWithoutRelease(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	crashed, err := l.Acquire(ctx, "lot-a", time.Second, 2*time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "lot-a", 10*time.Millisecond, 2*time.Second)
	require.ErrorIs(t, err, reserrors.ErrLockTimeout)

	mr.FastForward(2 * time.Second)

	next, err := l.Acquire(ctx, "lot-a", 10*time.Millisecond, 2*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, crashed.Token, next.Token)

	// the stale holder must not be able to drop the new holder's lock
	released, err := l.Release(ctx, "lot-a", crashed.Token)
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, mr.Exists(KeyPrefix+"lot-a"))
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	l, _ := newRedisLocker(t)

	_, err := l.Acquire(context.Background(), "lot-a", time.Second, 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "lot-a", time.Second, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisLocker_RejectsBadArguments(t *testing.T) {
	l, _ := newRedisLocker(t)
	_, err := l.Acquire(context.Background(), "", time.Second, time.Second)
	assert.Error(t, err)
	_, err = l.Acquire(context.Background(), "lot-a", time.Second, 0)
	assert.Error(t, err)
}

// ──────────────────────────────────────────────────────────────────────────
// Memory backend
// ──────────────────────────────────────────────────────────────────────────

func TestMemoryLocker_ExpiresWithClock(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	l := NewMemoryLocker(WithClock(clk), WithRetryInterval(time.Millisecond, 2*time.Millisecond))
	ctx := context.Background()

	first, err := l.Acquire(ctx, "lot-a", time.Second, 2*time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "lot-a", 5*time.Millisecond, 2*time.Second)
	require.ErrorIs(t, err, reserrors.ErrLockTimeout)

	clk.Advance(2 * time.Second)

	second, err := l.Acquire(ctx, "lot-a", 5*time.Millisecond, 2*time.Second)
	require.NoError(t, err)

	released, err := l.Release(ctx, "lot-a", first.Token)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = l.Release(ctx, "lot-a", second.Token)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	l := NewMemoryLocker(WithRetryInterval(time.Millisecond, 2*time.Millisecond))
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := l.Acquire(ctx, "lot-a", 2*time.Second, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			_, _ = l.Release(ctx, "lot-a", h.Token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}
