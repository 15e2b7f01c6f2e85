package status

import (
	"context"
	"testing"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"redis":  NewRedisStore(client),
		"memory": NewMemoryStore(time.Minute, time.Minute),
	}
}

func TestStore_PutGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := &model.RequestStatus{
				RequestID: "req-1",
				State:     model.StateCompleted,
				BookingID: "b-1",
				UnitID:    "spot-1",
				UpdatedAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
			}
			require.NoError(t, store.Put(ctx, in, time.Minute))

			first, err := store.Get(ctx, "req-1")
			require.NoError(t, err)
			second, err := store.Get(ctx, "req-1")
			require.NoError(t, err)

			assert.Equal(t, in, first)
			assert.Equal(t, first, second)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, reserrors.ErrNotFound)
		})
	}
}

func TestStore_PutIfAbsent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			queued := &model.RequestStatus{RequestID: "req-2", State: model.StateQueued}

			ok, err := store.PutIfAbsent(ctx, queued, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.PutIfAbsent(ctx, &model.RequestStatus{RequestID: "req-2", State: model.StateProcessing}, time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := store.Get(ctx, "req-2")
			require.NoError(t, err)
			assert.Equal(t, model.StateQueued, got.State)
		})
	}
}

func TestStore_RejectsMissingID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Put(context.Background(), &model.RequestStatus{}, time.Minute))
		})
	}
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &model.RequestStatus{RequestID: "req-3", State: model.StateQueued}, 61*time.Second))
	assert.Equal(t, 61*time.Second, mr.TTL(KeyPrefix+"req-3"))

	mr.FastForward(62 * time.Second)
	_, err := store.Get(ctx, "req-3")
	assert.ErrorIs(t, err, reserrors.ErrNotFound)
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore(time.Minute, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &model.RequestStatus{RequestID: "req-4", State: model.StateQueued}, 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, err := store.Get(ctx, "req-4")
	assert.ErrorIs(t, err, reserrors.ErrNotFound)
}
