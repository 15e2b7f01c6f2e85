package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/internal/reservations/status"
	"parkline/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func request(id string, p model.Priority, createdOffset time.Duration) *model.ReservationRequest {
	return &model.ReservationRequest{
		ID:             id,
		RequesterID:    "driver-" + id,
		PoolID:         "lot-a",
		StartTime:      t0.Add(time.Hour),
		EndTime:        t0.Add(2 * time.Hour),
		Priority:       p,
		CreatedAt:      t0.Add(createdOffset),
		MaxWaitSeconds: 60,
	}
}

func newQueue() (*AdmissionQueue, *status.MemoryStore) {
	store := status.NewMemoryStore(time.Minute, time.Minute)
	return New(store), store
}

type failingStore struct {
	status.Store
}

func (failingStore) Put(context.Context, *model.RequestStatus, time.Duration) error {
	return errors.New("redis down")
}

func TestEnqueueDequeue_PriorityOrder(t *testing.T) {
	q, _ := newQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, request("normal", model.PriorityNormal, 0))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, request("low", model.PriorityLow, 0))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, request("emergency", model.PriorityEmergency, time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, request("vip", model.PriorityVIP, 0))
	require.NoError(t, err)

	var order []string
	for {
		req, ok := q.Dequeue()
		if !ok {
			break
		}
		order = append(order, req.ID)
	}
	assert.Equal(t, []string{"emergency", "vip", "normal", "low"}, order)
}

func TestEnqueueDequeue_FIFOWithinPriority(t *testing.T) {
	q, _ := newQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, request("second", model.PriorityHigh, 2*time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, request("first", model.PriorityHigh, time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, request("tie-a", model.PriorityHigh, 3*time.Second))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, request("tie-b", model.PriorityHigh, 3*time.Second))
	require.NoError(t, err)

	for _, want := range []string{"first", "second", "tie-a", "tie-b"} {
		req, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, req.ID)
	}
}

func TestEnqueue_ReturnsPosition(t *testing.T) {
	q, _ := newQueue()
	ctx := context.Background()

	pos, err := q.Enqueue(ctx, request("a", model.PriorityNormal, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = q.Enqueue(ctx, request("b", model.PriorityNormal, time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = q.Enqueue(ctx, request("c", model.PriorityVIP, 2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	got, ok := q.PositionOf("b")
	require.True(t, ok)
	assert.Equal(t, 3, got)

	_, ok = q.PositionOf("missing")
	assert.False(t, ok)
}

func TestEnqueue_WritesQueuedStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := status.NewRedisStore(client)
	q := New(store, WithStatusGrace(30*time.Second))

	req := request("r-1", model.PriorityNormal, 0)
	_, err := q.Enqueue(context.Background(), req)
	require.NoError(t, err)

	st, err := store.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateQueued, st.State)
	assert.Equal(t, 1, st.Position)
	assert.Equal(t, 90*time.Second, mr.TTL(status.KeyPrefix+"r-1"))
}

func TestEnqueue_StatusFailureLeavesQueueUntouched(t *testing.T) {
	q := New(failingStore{})

	_, err := q.Enqueue(context.Background(), request("r-1", model.PriorityNormal, 0))
	require.Error(t, err)
	assert.Equal(t, 0, q.Size())

	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestEnqueue_Duplicate(t *testing.T) {
	q, _ := newQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, request("dup", model.PriorityNormal, 0))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, request("dup", model.PriorityVIP, 0))
	assert.ErrorIs(t, err, reserrors.ErrDuplicateRequest)
	assert.Equal(t, 1, q.Size())
}

func TestRemove(t *testing.T) {
	q, _ := newQueue()
	ctx := context.Background()

	for i, p := range []model.Priority{model.PriorityLow, model.PriorityHigh, model.PriorityNormal} {
		_, err := q.Enqueue(ctx, request(fmt.Sprintf("r-%d", i), p, 0))
		require.NoError(t, err)
	}

	assert.True(t, q.Remove("r-1"))
	assert.False(t, q.Remove("r-1"))
	assert.Equal(t, 2, q.Size())

	req, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "r-2", req.ID)
	assert.False(t, q.Remove("r-2"))
}

type gatedStore struct {
	status.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Put(ctx context.Context, st *model.RequestStatus, ttl time.Duration) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Store.Put(ctx, st, ttl)
}

func TestRemove_WhileStatusWriteInFlight(t *testing.T) {
	store := &gatedStore{
		Store:   status.NewMemoryStore(time.Minute, time.Minute),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	q := New(store)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(ctx, request("r-1", model.PriorityNormal, 0))
		errc <- err
	}()
	<-store.entered

	assert.True(t, q.Remove("r-1"))
	assert.False(t, q.Remove("r-1"))
	_, err := q.Enqueue(ctx, request("r-1", model.PriorityNormal, 0))
	assert.ErrorIs(t, err, reserrors.ErrDuplicateRequest)

	close(store.release)
	assert.ErrorIs(t, <-errc, reserrors.ErrRequestCancelled)
	assert.Equal(t, 0, q.Size())
	_, ok := q.Dequeue()
	assert.False(t, ok)
	_, ok = q.PositionOf("r-1")
	assert.False(t, ok)

	// the id is free for a fresh submission
	_, err = q.Enqueue(ctx, request("r-1", model.PriorityNormal, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Size())
}

func TestClose_RejectsEnqueue(t *testing.T) {
	q, _ := newQueue()
	q.Close()
	_, err := q.Enqueue(context.Background(), request("late", model.PriorityNormal, 0))
	assert.ErrorIs(t, err, reserrors.ErrQueueClosed)
}

func TestReady_Signalled(t *testing.T) {
	q, _ := newQueue()
	_, err := q.Enqueue(context.Background(), request("r", model.PriorityNormal, 0))
	require.NoError(t, err)

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("expected ready signal after enqueue")
	}
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	q, _ := newQueue()
	ctx := context.Background()

	const producers, perProducer = 8, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				prio := model.AllPriorities[(p+i)%len(model.AllPriorities)]
				_, err := q.Enqueue(ctx, request(fmt.Sprintf("p%d-%d", p, i), prio, time.Duration(i)*time.Millisecond))
				assert.NoError(t, err)
			}
		}(p)
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	done := make(chan struct{})
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				req, ok := q.Dequeue()
				if ok {
					mu.Lock()
					assert.False(t, seen[req.ID], "request %s dequeued twice", req.ID)
					seen[req.ID] = true
					mu.Unlock()
					continue
				}
				select {
				case <-done:
					return
				default:
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}

	wg.Wait()
	require.Eventually(t, func() bool { return q.Size() == 0 }, 5*time.Second, 5*time.Millisecond)
	close(done)
	consumers.Wait()

	assert.Len(t, seen, producers*perProducer)
}
