package core

import (
	"iter"
	"sync"
	"sync/atomic"
)

// Domain abstracts how a parallel stage's elements are stored and
// claimed. Rewind initializes the claim cursor and runs exactly once,
// under the stage's setup gate, before any ClaimNext. ClaimNext claims
// one unit of work and visits every element in it; it returns false —
// idempotently — once nothing is left. Implementations decide the unit
// granularity and whether elements have stable indices (index is -1
// when they do not).
type Domain[E any] interface {
	Rewind()
	ClaimNext(visit func(element E, index int)) bool
}

// SliceDomain claims one element at a time from a slice via an atomic
// cursor. The slice must not change while claiming is in progress.
type SliceDomain[E any] struct {
	Elements []E
	cursor   atomic.Int64
}

// NewSliceDomain wraps elements in a claimable domain.
func NewSliceDomain[E any](elements []E) *SliceDomain[E] {
	return &SliceDomain[E]{Elements: elements}
}

func (d *SliceDomain[E]) Rewind() {
	d.cursor.Store(0)
}

func (d *SliceDomain[E]) ClaimNext(visit func(element E, index int)) bool {
	idx := d.cursor.Add(1) - 1
	if idx >= int64(len(d.Elements)) {
		return false
	}
	visit(d.Elements[idx], int(idx))
	return true
}

// IterDomain claims elements from a forward-only sequence. The pull
// cursor advances under an exclusive lock; claimed elements have no
// stable position, so visit receives index -1.
type IterDomain[E any] struct {
	Seq iter.Seq[E]

	mu   sync.Mutex
	next func() (E, bool)
	stop func()
}

// NewIterDomain wraps a sequence in a claimable domain.
func NewIterDomain[E any](seq iter.Seq[E]) *IterDomain[E] {
	return &IterDomain[E]{Seq: seq}
}

func (d *IterDomain[E]) Rewind() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		d.stop()
	}
	d.next, d.stop = iter.Pull(d.Seq)
}

func (d *IterDomain[E]) ClaimNext(visit func(element E, index int)) bool {
	d.mu.Lock()
	if d.next == nil {
		d.next, d.stop = iter.Pull(d.Seq)
	}
	elem, ok := d.next()
	d.mu.Unlock()

	if !ok {
		return false
	}
	visit(elem, -1)
	return true
}

// LinkedDomain claims elements by following next pointers from a head.
// The zero value of E terminates the walk. The cursor advances under an
// exclusive lock; index is -1.
type LinkedDomain[E comparable] struct {
	Head E
	Next func(E) E

	mu      sync.Mutex
	cursor  E
	started bool
}

// NewLinkedDomain wraps a linked structure in a claimable domain.
func NewLinkedDomain[E comparable](head E, next func(E) E) *LinkedDomain[E] {
	return &LinkedDomain[E]{Head: head, Next: next}
}

func (d *LinkedDomain[E]) Rewind() {
	d.mu.Lock()
	d.cursor = d.Head
	d.started = true
	d.mu.Unlock()
}

func (d *LinkedDomain[E]) ClaimNext(visit func(element E, index int)) bool {
	var zero E

	d.mu.Lock()
	if !d.started {
		d.cursor = d.Head
		d.started = true
	}
	elem := d.cursor
	if elem == zero {
		d.mu.Unlock()
		return false
	}
	d.cursor = d.Next(elem)
	d.mu.Unlock()

	visit(elem, -1)
	return true
}
