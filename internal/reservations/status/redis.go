package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/model"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, status *model.RequestStatus, ttl time.Duration) error {
	data, err := encode(status)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(status.RequestID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store status for %s: %w", status.RequestID, err)
	}
	return nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, status *model.RequestStatus, ttl time.Duration) (bool, error) {
	data, err := encode(status)
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, key(status.RequestID), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store status for %s: %w", status.RequestID, err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, requestID string) (*model.RequestStatus, error) {
	data, err := s.client.Get(ctx, key(requestID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, reserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read status for %s: %w", requestID, err)
	}
	return decode(requestID, data)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
