package delayqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryDelayQueue is an in-process queue ordered by due time.
type MemoryDelayQueue struct {
	mu    sync.Mutex
	items envelopeHeap
	seq   uint64
}

func NewMemoryDelayQueue() *MemoryDelayQueue {
	return &MemoryDelayQueue{}
}

func (q *MemoryDelayQueue) Push(_ context.Context, envelope Envelope, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, &parked{envelope: envelope, dueAt: dueAt, seq: q.seq})

	return nil
}

func (q *MemoryDelayQueue) PopDue(_ context.Context, now time.Time, limit int) ([]Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Envelope

	for q.items.Len() > 0 && !q.items[0].dueAt.After(now) && (limit <= 0 || len(due) < limit) {
		due = append(due, heap.Pop(&q.items).(*parked).envelope)
	}

	return due, nil
}

// Pending returns the parked envelopes with their due times, earliest first.
func (q *MemoryDelayQueue) Pending() []Scheduled {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make(envelopeHeap, len(q.items))
	copy(items, q.items)

	scheduled := make([]Scheduled, 0, len(items))
	for items.Len() > 0 {
		p := heap.Pop(&items).(*parked)
		scheduled = append(scheduled, Scheduled{Envelope: p.envelope, DueAt: p.dueAt})
	}

	return scheduled
}

// Scheduled is a parked envelope and its due time.
type Scheduled struct {
	Envelope Envelope
	DueAt    time.Time
}

type parked struct {
	envelope Envelope
	dueAt    time.Time
	seq      uint64
}

type envelopeHeap []*parked

func (h envelopeHeap) Len() int { return len(h) }

func (h envelopeHeap) Less(i, j int) bool {
	if h[i].dueAt.Equal(h[j].dueAt) {
		return h[i].seq < h[j].seq
	}

	return h[i].dueAt.Before(h[j].dueAt)
}

func (h envelopeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *envelopeHeap) Push(x any) { *h = append(*h, x.(*parked)) }

func (h *envelopeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return item
}
