package core

import (
	"sync"

	"github.com/eapache/queue"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// =============================================================================
// fifoQueue: slice-backed FIFO with capacity compaction
// =============================================================================

// fifoQueue backs the parallel pending list and the continuous set.
// Consumers drain it one item (Pop) or wholesale (PopAll) per tick.
type fifoQueue[T any] struct {
	mu    sync.Mutex
	items []T
}

func newFIFOQueue[T any]() *fifoQueue[T] {
	return &fifoQueue[T]{
		items: make([]T, 0, defaultQueueCap),
	}
}

func (q *fifoQueue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

func (q *fifoQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

// PopAll hands the caller every queued item and leaves the queue empty.
func (q *fifoQueue[T]) PopAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	batch := q.items
	q.items = make([]T, 0, defaultQueueCap)
	return batch
}

func (q *fifoQueue[T]) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]T, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]T, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *fifoQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all items from the queue and releases references
func (q *fifoQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]T, 0, defaultQueueCap)
}

// =============================================================================
// ringQueue: ring-buffer FIFO for the inbox/outbox/delete queues
// =============================================================================

// ringQueue sees bursty producer traffic from many threads while the
// driver drains it whole once per tick; the ring buffer keeps hot
// enqueue/dequeue cycles from reallocating.
type ringQueue[T any] struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newRingQueue[T any]() *ringQueue[T] {
	return &ringQueue[T]{q: queue.New()}
}

func (r *ringQueue[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q.Add(item)
}

func (r *ringQueue[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.q.Length() == 0 {
		return zero, false
	}
	return r.q.Remove().(T), true
}

func (r *ringQueue[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Length()
}

func (r *ringQueue[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q = queue.New()
}
