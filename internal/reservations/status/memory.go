package status

import (
	"context"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/model"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps statuses in process memory with per-entry expiry.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(defaultTTL, cleanupInterval)}
}

func (s *MemoryStore) Put(_ context.Context, status *model.RequestStatus, ttl time.Duration) error {
	data, err := encode(status)
	if err != nil {
		return err
	}
	s.cache.Set(key(status.RequestID), data, ttl)
	return nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, status *model.RequestStatus, ttl time.Duration) (bool, error) {
	data, err := encode(status)
	if err != nil {
		return false, err
	}
	if err := s.cache.Add(key(status.RequestID), data, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, requestID string) (*model.RequestStatus, error) {
	v, ok := s.cache.Get(key(requestID))
	if !ok {
		return nil, reserrors.ErrNotFound
	}
	return decode(requestID, v.([]byte))
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
