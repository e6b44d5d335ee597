package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Stage is one link of a parallel pipeline: a ParallelTask that can
// receive the previous stage's intermediary and forward its own to a
// successor. TakeIntermediary transfers ownership of the payload;
// LinkNext wires the successor before submission.
type Stage[I any] interface {
	ParallelTask
	TakeIntermediary(payload *I)
	LinkNext(next Stage[I])
}

// DomainHandler supplies a stage's behavior as an interface, for
// callers who prefer a type over a bundle of closures.
type DomainHandler[I, E any] interface {
	Setup(ctx context.Context, payload *I)
	Loop(ctx context.Context, payload *I, element E, index int) error
	Done(ctx context.Context, payload *I)
}

// DomainChain is a pipeline stage whose Run pulls work from a Domain
// carried inside its intermediary payload. All pool workers assigned to
// the stage race through the same claim cursor; the first one in runs
// the setup gate, the last one out (the exhaustion barrier) runs Done
// and hands the payload to the next stage.
type DomainChain[I, E any] struct {
	name     string
	accessor func(*I) Domain[E]

	setup   func(ctx context.Context, payload *I)
	loop    func(ctx context.Context, payload *I, element E, index int) error
	done    func(ctx context.Context, payload *I)
	onAbort func()

	maxWorkers int

	mu           sync.Mutex
	intermediary *I
	next         Stage[I]
	setupDone    bool
	domain       Domain[E]

	abandoned atomic.Bool
	released  atomic.Bool
}

// NewDomainChain creates a stage over the domain that accessor extracts
// from the intermediary payload. Behavior is attached with the On*
// setters before submission.
func NewDomainChain[I, E any](name string, accessor func(*I) Domain[E]) *DomainChain[I, E] {
	if accessor == nil {
		panic("scheduler: DomainChain needs a domain accessor")
	}
	return &DomainChain[I, E]{name: name, accessor: accessor}
}

// NewDomainChainFor creates a stage whose behavior comes from handler.
func NewDomainChainFor[I, E any](name string, accessor func(*I) Domain[E], handler DomainHandler[I, E]) *DomainChain[I, E] {
	c := NewDomainChain[I, E](name, accessor)
	c.OnSetup(handler.Setup)
	c.OnLoop(handler.Loop)
	c.OnDone(handler.Done)
	return c
}

// Name identifies the stage in logs and batch records.
func (c *DomainChain[I, E]) Name() string { return c.name }

// OnSetup runs once, before any claim, under the stage's setup gate.
func (c *DomainChain[I, E]) OnSetup(fn func(ctx context.Context, payload *I)) *DomainChain[I, E] {
	c.setup = fn
	return c
}

// OnLoop runs for every claimed element, concurrently across workers.
func (c *DomainChain[I, E]) OnLoop(fn func(ctx context.Context, payload *I, element E, index int) error) *DomainChain[I, E] {
	c.loop = fn
	return c
}

// OnDone runs once, after the exhaustion barrier, before the baton
// passes to the next stage.
func (c *DomainChain[I, E]) OnDone(fn func(ctx context.Context, payload *I)) *DomainChain[I, E] {
	c.done = fn
	return c
}

// OnAbort registers a release hook fired when the stage is abandoned.
func (c *DomainChain[I, E]) OnAbort(fn func()) *DomainChain[I, E] {
	c.onAbort = fn
	return c
}

// SetIntermediary seeds the head stage's payload. Later stages receive
// theirs through TakeIntermediary.
func (c *DomainChain[I, E]) SetIntermediary(payload *I) *DomainChain[I, E] {
	c.mu.Lock()
	c.intermediary = payload
	c.mu.Unlock()
	return c
}

// SetMaxWorkers caps the stage's fan-out; 0 means the full pool.
func (c *DomainChain[I, E]) SetMaxWorkers(n int) *DomainChain[I, E] {
	c.maxWorkers = n
	return c
}

// Intermediary exposes the payload, for tests and release hooks.
func (c *DomainChain[I, E]) Intermediary() *I {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intermediary
}

// MaxWorkers implements ParallelTask.
func (c *DomainChain[I, E]) MaxWorkers() int { return c.maxWorkers }

// TakeIntermediary implements Stage: ownership of payload moves to this
// stage.
func (c *DomainChain[I, E]) TakeIntermediary(payload *I) {
	c.SetIntermediary(payload)
}

// LinkNext implements Stage.
func (c *DomainChain[I, E]) LinkNext(next Stage[I]) {
	c.mu.Lock()
	c.next = next
	c.mu.Unlock()
}

// Run implements ParallelTask: every assigned worker enters here and
// pulls claims until the domain is exhausted or the stage is abandoned.
func (c *DomainChain[I, E]) Run(ctx context.Context) {
	payload, domain := c.ensureSetup(ctx)
	if domain == nil {
		return
	}
	for !c.abandoned.Load() {
		if !domain.ClaimNext(func(element E, index int) {
			c.visit(ctx, payload, element, index)
		}) {
			return
		}
	}
}

// ensureSetup runs the setup gate exactly once: extract the domain,
// rewind its cursor, run the user setup. Workers arriving later pass
// straight through.
func (c *DomainChain[I, E]) ensureSetup(ctx context.Context) (*I, Domain[E]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.setupDone {
		c.setupDone = true
		c.domain = c.accessor(c.intermediary)
		if c.domain != nil {
			c.domain.Rewind()
		}
		if c.setup != nil {
			c.setup(ctx, c.intermediary)
		}
	}
	return c.intermediary, c.domain
}

// visit runs the loop body for one element. Failures are contained per
// element: an error or panic is reported and claiming continues.
func (c *DomainChain[I, E]) visit(ctx context.Context, payload *I, element E, index int) {
	defer func() {
		if rec := recover(); rec != nil {
			if s := SchedulerFrom(ctx); s != nil {
				s.reportElementPanic(ctx, c.name, index, rec, debug.Stack())
			}
		}
	}()

	if c.loop == nil {
		return
	}
	if err := c.loop(ctx, payload, element, index); err != nil {
		if s := SchedulerFrom(ctx); s != nil {
			s.reportElementFailure(c.name, index, err)
		}
	}
}

// Exhausted implements ParallelTask: runs once the last assigned worker
// has returned from Run.
func (c *DomainChain[I, E]) Exhausted(ctx context.Context) {
	if c.abandoned.Load() {
		return
	}
	if c.done != nil {
		c.done(ctx, c.Intermediary())
	}
	c.batonPass(ctx)
}

// batonPass moves the intermediary into the next stage and enqueues it.
// The link is single-use: after the pass this stage holds neither the
// payload nor the successor.
func (c *DomainChain[I, E]) batonPass(ctx context.Context) {
	c.mu.Lock()
	next := c.next
	payload := c.intermediary
	c.next = nil
	c.intermediary = nil
	c.mu.Unlock()

	if next == nil {
		return
	}
	next.TakeIntermediary(payload)
	if s := SchedulerFrom(ctx); s != nil {
		s.EnqueueParallel(next)
	}
}

// Abandon implements ParallelTask: releases this stage and recursively
// abandons the rest of the chain, exactly once per stage.
func (c *DomainChain[I, E]) Abandon() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.abandoned.Store(true)

	c.mu.Lock()
	next := c.next
	c.next = nil
	c.intermediary = nil
	c.mu.Unlock()

	if c.onAbort != nil {
		c.onAbort()
	}
	if next != nil {
		next.Abandon()
	}
}

// ChainBuilder assembles a pipeline of stages head to tail. Stages are
// linked before submission; Submit hands only the head to the
// scheduler, and each exhaustion barrier enqueues the successor.
type ChainBuilder[I any] struct {
	head Stage[I]
	tail Stage[I]
}

// NewChain starts a pipeline at the given head stage.
func NewChain[I any](head Stage[I]) *ChainBuilder[I] {
	return &ChainBuilder[I]{head: head, tail: head}
}

// Link appends a stage to the pipeline.
func (b *ChainBuilder[I]) Link(stage Stage[I]) *ChainBuilder[I] {
	if stage == nil {
		return b
	}
	if b.head == nil {
		b.head = stage
	} else {
		b.tail.LinkNext(stage)
	}
	b.tail = stage
	return b
}

// Submit enqueues the head stage. The builder is spent afterwards.
func (b *ChainBuilder[I]) Submit(s *Scheduler) error {
	head := b.head
	b.head = nil
	b.tail = nil
	if head == nil {
		return nil
	}
	if s == nil || !s.Live() {
		head.Abandon()
		return ErrDeadHandle
	}
	s.EnqueueParallel(head)
	return nil
}

// Discard abandons an unsubmitted pipeline, releasing every stage.
func (b *ChainBuilder[I]) Discard() {
	head := b.head
	b.head = nil
	b.tail = nil
	if head != nil {
		head.Abandon()
	}
}
