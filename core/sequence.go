package core

import "sync/atomic"

// SequenceGenerator partitions the half-open range [0, count) into
// contiguous lanes and hands each lane to exactly one claimer. It is
// the cheapest Domain: elements are generated, never stored.
type SequenceGenerator struct {
	lanes    []lane
	progress atomic.Int64
}

type lane struct {
	start      int
	stopBefore int
}

// NewSequence builds a generator over [0, count) split into at most
// partitions lanes of size ceil(count/partitions); the last lane is
// trimmed to the range end.
func NewSequence(count, partitions int) *SequenceGenerator {
	g := &SequenceGenerator{}
	g.Reset(count, partitions)
	return g
}

// Reset re-partitions the generator and rewinds the cursor. Must not
// race with Advance.
func (g *SequenceGenerator) Reset(count, partitions int) {
	if partitions < 1 {
		partitions = 1
	}
	g.lanes = g.lanes[:0]
	if count > 0 {
		laneSize := (count + partitions - 1) / partitions
		for start := 0; start < count; start += laneSize {
			stop := min(start+laneSize, count)
			g.lanes = append(g.lanes, lane{start: start, stopBefore: stop})
		}
	}
	g.progress.Store(0)
}

// Advance claims the next unclaimed lane. Exhaustion is idempotent:
// once it returns ok=false it keeps doing so until Reset or Rewind.
func (g *SequenceGenerator) Advance() (start, stopBefore int, ok bool) {
	idx := g.progress.Add(1) - 1
	if idx >= int64(len(g.lanes)) {
		return 0, 0, false
	}
	l := g.lanes[idx]
	return l.start, l.stopBefore, true
}

// Len returns the number of lanes.
func (g *SequenceGenerator) Len() int {
	return len(g.lanes)
}

// Rewind restarts claiming from the first lane.
func (g *SequenceGenerator) Rewind() {
	g.progress.Store(0)
}

// ClaimNext claims one lane and visits each index in it. Satisfies
// Domain[int] so a generator can drive a chain stage directly.
func (g *SequenceGenerator) ClaimNext(visit func(element int, index int)) bool {
	start, stopBefore, ok := g.Advance()
	if !ok {
		return false
	}
	for i := start; i < stopBefore; i++ {
		visit(i, i)
	}
	return true
}
