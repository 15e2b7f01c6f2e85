package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	reserrors "parkline/internal/reservations/errors"
	"parkline/internal/reservations/status"
	"parkline/pkg/clock"
	"parkline/pkg/metrics"
	"parkline/pkg/model"
)

const DefaultStatusGrace = time.Minute

// AdmissionQueue is the in-process priority queue of pending reservation requests.
// All mutations happen inside one short critical section; status writes happen outside it.
type AdmissionQueue struct {
	mu      sync.Mutex
	entries entryHeap
	index   map[string]*entry
	pending map[string]bool // id -> cancelled while its status write is in flight
	seq     uint64
	closed  bool

	ready    chan struct{}
	statuses status.Store
	clock    clock.Clock
	grace    time.Duration
}

type Option func(*AdmissionQueue)

func WithClock(c clock.Clock) Option {
	return func(q *AdmissionQueue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithStatusGrace extends the queued status TTL beyond the request's max wait.
func WithStatusGrace(d time.Duration) Option {
	return func(q *AdmissionQueue) {
		if d >= 0 {
			q.grace = d
		}
	}
}

func New(statuses status.Store, opts ...Option) *AdmissionQueue {
	q := &AdmissionQueue{
		index:    make(map[string]*entry),
		pending:  make(map[string]bool),
		ready:    make(chan struct{}, 1),
		statuses: statuses,
		clock:    clock.Real{},
		grace:    DefaultStatusGrace,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue admits req and returns its 1-based position. A Queued status entry with a TTL of
// max wait plus grace is written before the request becomes visible to workers.
// A Remove that lands during that write wins: the entry is dropped and
// ErrRequestCancelled is returned.
func (q *AdmissionQueue) Enqueue(ctx context.Context, req *model.ReservationRequest) (int, error) {
	if req == nil || req.ID == "" {
		return 0, fmt.Errorf("request must carry an id")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, reserrors.ErrQueueClosed
	}
	if _, ok := q.index[req.ID]; ok {
		q.mu.Unlock()
		return 0, reserrors.ErrDuplicateRequest
	}
	if _, ok := q.pending[req.ID]; ok {
		q.mu.Unlock()
		return 0, reserrors.ErrDuplicateRequest
	}
	q.pending[req.ID] = false
	q.seq++
	e := &entry{req: req, seq: q.seq, index: -1}
	position := q.rankLocked(e)
	q.mu.Unlock()

	err := q.statuses.Put(ctx, &model.RequestStatus{
		RequestID: req.ID,
		PoolID:    req.PoolID,
		State:     model.StateQueued,
		Position:  position,
		UpdatedAt: q.clock.Now(),
	}, q.StatusTTL(req))

	q.mu.Lock()
	cancelled := q.pending[req.ID]
	delete(q.pending, req.ID)
	if cancelled {
		q.mu.Unlock()
		return 0, reserrors.ErrRequestCancelled
	}
	if err != nil {
		q.mu.Unlock()
		return 0, fmt.Errorf("failed to record queued status for %s: %w", req.ID, err)
	}
	if q.closed {
		q.mu.Unlock()
		return 0, reserrors.ErrQueueClosed
	}
	heap.Push(&q.entries, e)
	q.index[req.ID] = e
	position = q.rankLocked(e)
	size := len(q.entries)
	q.mu.Unlock()

	metrics.SetQueueDepth(size)
	q.notify()
	return position, nil
}

// Dequeue removes and returns the highest priority request.
func (q *AdmissionQueue) Dequeue() (*model.ReservationRequest, bool) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	e := heap.Pop(&q.entries).(*entry)
	delete(q.index, e.req.ID)
	size := len(q.entries)
	q.mu.Unlock()

	metrics.SetQueueDepth(size)
	if size > 0 {
		q.notify()
	}
	return e.req, true
}

// Remove drops a queued request. It reports false once the request has been dequeued.
func (q *AdmissionQueue) Remove(requestID string) bool {
	q.mu.Lock()
	if cancelled, ok := q.pending[requestID]; ok {
		q.pending[requestID] = true
		q.mu.Unlock()
		return !cancelled
	}
	e, ok := q.index[requestID]
	if !ok {
		q.mu.Unlock()
		return false
	}
	heap.Remove(&q.entries, e.index)
	delete(q.index, requestID)
	size := len(q.entries)
	q.mu.Unlock()

	metrics.SetQueueDepth(size)
	return true
}

// PositionOf returns the 1-based dequeue rank of a queued request.
func (q *AdmissionQueue) PositionOf(requestID string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[requestID]
	if !ok {
		return 0, false
	}
	return q.rankLocked(e), true
}

func (q *AdmissionQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Ready is signalled whenever work may be available.
func (q *AdmissionQueue) Ready() <-chan struct{} {
	return q.ready
}

// Close rejects further enqueues. Requests already queued stay until dequeued or removed.
func (q *AdmissionQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// StatusTTL is the lifetime of a request's Queued status entry.
func (q *AdmissionQueue) StatusTTL(req *model.ReservationRequest) time.Duration {
	return req.MaxWait() + q.grace
}

func (q *AdmissionQueue) rankLocked(e *entry) int {
	rank := 1
	for _, other := range q.entries {
		if other != e && before(other, e) {
			rank++
		}
	}
	return rank
}

func (q *AdmissionQueue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
