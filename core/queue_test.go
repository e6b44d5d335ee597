package core

import (
	"sync"
	"testing"
)

// TestFIFOQueue_Ordering verifies FIFO semantics
// Given: A queue with items pushed in order
// When: Items are popped
// Then: They come out in insertion order and exhaustion reports false
func TestFIFOQueue_Ordering(t *testing.T) {
	// Arrange
	q := newFIFOQueue[int]()
	for i := range 5 {
		q.Push(i)
	}

	// Act + Assert
	for want := range 5 {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %d ok=%v, want %d ok=true", got, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue ok = true, want false")
	}
}

// TestFIFOQueue_PopAll verifies wholesale draining
// Given: A queue with 3 items
// When: PopAll is called
// Then: All items return in order and the queue is empty
func TestFIFOQueue_PopAll(t *testing.T) {
	q := newFIFOQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	batch := q.PopAll()

	if len(batch) != 3 || batch[0] != "a" || batch[2] != "c" {
		t.Errorf("PopAll() = %v, want [a b c]", batch)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d after PopAll, want 0", q.Len())
	}
	if q.PopAll() != nil {
		t.Error("PopAll() on empty queue != nil, want nil")
	}
}

// TestFIFOQueue_CompactionShrinksCapacity verifies memory reclamation
// Given: A queue grown past the compaction threshold then mostly drained
// When: Pops bring len far below cap
// Then: Capacity shrinks instead of pinning the high-water mark
func TestFIFOQueue_CompactionShrinksCapacity(t *testing.T) {
	// Arrange - grow well past compactMinCap
	q := newFIFOQueue[int]()
	const n = compactMinCap * 4
	for i := range n {
		q.Push(i)
	}

	// Act - drain until far below a quarter of capacity
	for range n - 2 {
		q.Pop()
	}

	// Assert
	if c := cap(q.items); c >= n {
		t.Errorf("cap = %d after drain, want shrunk below %d", c, n)
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}
}

// TestRingQueue_ConcurrentProducers verifies thread-safe bursty traffic
// Given: 8 goroutines each pushing 100 items
// When: The queue is drained afterwards
// Then: All 800 items come out
func TestRingQueue_ConcurrentProducers(t *testing.T) {
	// Arrange
	q := newRingQueue[int]()

	// Act
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				q.Push(w*100 + i)
			}
		}()
	}
	wg.Wait()

	// Assert
	if q.Len() != 800 {
		t.Fatalf("Len() = %d, want 800", q.Len())
	}
	count := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		count++
	}
	if count != 800 {
		t.Errorf("drained %d items, want 800", count)
	}
}

// TestRingQueue_Clear verifies wholesale release
// Given: A queue with queued items
// When: Clear is called
// Then: The queue reports empty
func TestRingQueue_Clear(t *testing.T) {
	q := newRingQueue[string]()
	q.Push("x")
	q.Push("y")

	q.Clear()

	if q.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", q.Len())
	}
}
