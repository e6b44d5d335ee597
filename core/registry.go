package core

import (
	"sync"
	"sync/atomic"
	"weak"
)

// Handle is a stable opaque key for a registered value.
type Handle uint64

// Registry issues handles for cached values without taking ownership:
// entries hold weak pointers, so registration never extends a value's
// lifetime. Lookups on a collected value simply miss. Dead entries
// accumulate until PruneTask runs on the delete queue.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[Handle]weak.Pointer[T]
	next    atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[Handle]weak.Pointer[T])}
}

// Register stores v and returns its handle. v must be non-nil.
func (r *Registry[T]) Register(v *T) Handle {
	h := Handle(r.next.Add(1))
	ptr := weak.Make(v)

	r.mu.Lock()
	r.entries[h] = ptr
	r.mu.Unlock()
	return h
}

// Lookup resolves a handle; ok is false for unknown handles and for
// values already collected.
func (r *Registry[T]) Lookup(h Handle) (*T, bool) {
	r.mu.RLock()
	ptr, found := r.entries[h]
	r.mu.RUnlock()

	if !found {
		return nil, false
	}
	v := ptr.Value()
	return v, v != nil
}

// Remove drops a handle explicitly.
func (r *Registry[T]) Remove(h Handle) {
	r.mu.Lock()
	delete(r.entries, h)
	r.mu.Unlock()
}

// Len counts registered entries, dead ones included.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// PruneTask returns a DeleteTask that drops entries whose values have
// been collected. Meant for the delete queue, where it runs with no
// worker concurrently resolving handles into fresh strong pointers.
func (r *Registry[T]) PruneTask() DeleteTask {
	return Finalizer(func() {
		r.mu.Lock()
		for h, ptr := range r.entries {
			if ptr.Value() == nil {
				delete(r.entries, h)
			}
		}
		r.mu.Unlock()
	})
}
