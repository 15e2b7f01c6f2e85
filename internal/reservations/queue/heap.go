package queue

import (
	"parkline/pkg/model"
)

type entry struct {
	req   *model.ReservationRequest
	seq   uint64
	index int
}

// before reports whether a is dequeued ahead of b: higher priority first, then earlier
// creation, then earlier arrival.
func before(a, b *entry) bool {
	if c := model.ComparePriority(a.req.Priority, b.req.Priority); c != 0 {
		return c > 0
	}
	if !a.req.CreatedAt.Equal(b.req.CreatedAt) {
		return a.req.CreatedAt.Before(b.req.CreatedAt)
	}
	return a.seq < b.seq
}

// entryHeap implements heap.Interface.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return before(h[i], h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
