package lock

import (
	"context"
	"fmt"
	"time"

	"parkline/pkg/model"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	opts   options
}

func NewRedisLocker(client redis.UniversalClient, opts ...Option) *RedisLocker {
	return &RedisLocker{
		client: client,
		opts:   newOptions(opts),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, poolID string, timeout, ttl time.Duration) (*model.LockHandle, error) {
	return acquire(ctx, l.opts, "redis", poolID, timeout, ttl, func(ctx context.Context, h *model.LockHandle, ttl time.Duration) (bool, error) {
		return l.client.SetNX(ctx, h.Key, h.Token, ttl).Result()
	})
}

func (l *RedisLocker) Release(ctx context.Context, poolID, token string) (bool, error) {
	ctx, cancel := releaseContext(ctx)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{l.opts.key(poolID)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release lock for pool %s: %w", poolID, err)
	}
	return n == 1, nil
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
