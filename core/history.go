package core

import (
	"sync"
	"time"
)

const defaultBatchHistoryCapacity = 100

// BatchRecord describes one completed parallel batch.
type BatchRecord struct {
	Name       string
	Workers    int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
	Abandoned  bool
}

// batchHistory keeps the most recent batch records in a fixed ring.
type batchHistory struct {
	mu      sync.Mutex
	records []BatchRecord
	next    int
	filled  bool
}

func newBatchHistory(capacity int) batchHistory {
	if capacity < 1 {
		capacity = defaultBatchHistoryCapacity
	}
	return batchHistory{records: make([]BatchRecord, capacity)}
}

func (h *batchHistory) Add(record BatchRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[h.next] = record
	h.next++
	if h.next == len(h.records) {
		h.next = 0
		h.filled = true
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means
// everything retained.
func (h *batchHistory) Recent(limit int) []BatchRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.next
	if h.filled {
		size = len(h.records)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]BatchRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := h.next - i
		if idx < 0 {
			idx += len(h.records)
		}
		out = append(out, h.records[idx])
	}
	return out
}
