package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// Accumulator collects values concurrently without locking by giving
// every execution context its own lane: lane 0 is the driver, lanes
// 1..N the pool workers. Push is wait-free because no two contexts
// share a lane.
//
// Pushing and claiming are distinct phases. Callers must not Push once
// claiming has begun; in practice the exhaustion barrier of the batch
// that filled the accumulator separates the two.
type Accumulator[T any] struct {
	lanes [][]T

	mu       sync.Mutex
	offsets  []int
	progress atomic.Int64
}

// NewAccumulator sizes the accumulator for the scheduler's pool.
func NewAccumulator[T any](s *Scheduler) *Accumulator[T] {
	return NewAccumulatorSized[T](s.PoolSize())
}

// NewAccumulatorSized builds an accumulator with poolSize+1 lanes.
func NewAccumulatorSized[T any](poolSize int) *Accumulator[T] {
	if poolSize < 0 {
		poolSize = 0
	}
	return &Accumulator[T]{lanes: make([][]T, poolSize+1)}
}

// Push appends v to the lane owned by ctx's execution context.
func (a *Accumulator[T]) Push(ctx context.Context, v T) {
	idx := WorkerIndex(ctx)
	if idx < 0 || idx >= len(a.lanes) {
		idx = 0
	}
	a.lanes[idx] = append(a.lanes[idx], v)
}

// Size returns the total number of pushed values.
func (a *Accumulator[T]) Size() int {
	n := 0
	for _, l := range a.lanes {
		n += len(l)
	}
	return n
}

// Join flattens all lanes into one slice, in lane order.
func (a *Accumulator[T]) Join() []T {
	out := make([]T, 0, a.Size())
	for _, l := range a.lanes {
		out = append(out, l...)
	}
	return out
}

// Read visits every value in lane order without copying.
func (a *Accumulator[T]) Read(fn func(v T)) {
	for _, l := range a.lanes {
		for _, v := range l {
			fn(v)
		}
	}
}

// Rewind prepares the accumulator for claiming: it snapshots the
// absolute start offset of every lane and restarts the claim cursor.
func (a *Accumulator[T]) Rewind() {
	a.mu.Lock()
	a.rewindLocked()
	a.mu.Unlock()
}

func (a *Accumulator[T]) rewindLocked() {
	a.offsets = a.offsets[:0]
	off := 0
	for _, l := range a.lanes {
		a.offsets = append(a.offsets, off)
		off += len(l)
	}
	a.progress.Store(0)
}

// Claim hands one whole non-empty lane to exactly one claimer, along
// with the absolute index of its first element. The lane is detached
// from the accumulator; exhaustion is idempotent.
func (a *Accumulator[T]) Claim() (batch []T, start int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.offsets == nil {
		a.rewindLocked()
	}

	for {
		idx := a.progress.Add(1) - 1
		if idx >= int64(len(a.lanes)) {
			return nil, 0, false
		}
		l := a.lanes[idx]
		if len(l) == 0 {
			continue
		}
		a.lanes[idx] = nil
		return l, a.offsets[idx], true
	}
}

// ClaimNext claims one lane and visits each value with its absolute
// index. Satisfies Domain[T].
func (a *Accumulator[T]) ClaimNext(visit func(element T, index int)) bool {
	batch, start, ok := a.Claim()
	if !ok {
		return false
	}
	for j, v := range batch {
		visit(v, start+j)
	}
	return true
}
