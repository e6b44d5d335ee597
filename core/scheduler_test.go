package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

// TestScheduler_AsyncTaskLifecycle verifies the inbox/outbox protocol
// Given: An async task queued on the inbox
// When: Advance runs one tick
// Then: Run executes, the task moves through the outbox, and Done
// completes it; Abort never fires
func TestScheduler_AsyncTaskLifecycle(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	defer s.Teardown()

	var runs, dones, aborts atomic.Int32
	var doneAfterRun atomic.Bool
	s.EnqueueInbox(&AsyncFunc{
		OnRun:  func(ctx context.Context) { runs.Add(1) },
		OnDone: func(ctx context.Context) {
			doneAfterRun.Store(runs.Load() == 1)
			dones.Add(1)
		},
		OnAbort: func() { aborts.Add(1) },
	})

	// Act
	s.Advance()

	// Assert
	if runs.Load() != 1 || dones.Load() != 1 {
		t.Fatalf("after one tick: runs=%d dones=%d, want 1 and 1", runs.Load(), dones.Load())
	}
	if !doneAfterRun.Load() {
		t.Error("Done observed Run incomplete, want Run strictly before Done")
	}
	if aborts.Load() != 0 {
		t.Errorf("aborts = %d, want 0", aborts.Load())
	}
}

// TestScheduler_OutboxCompletesWorkerResults verifies direct outbox use
// Given: A finished job handed to the outbox, as a worker would
// When: Advance runs
// Then: Done executes on the driver without Run being re-invoked
func TestScheduler_OutboxCompletesWorkerResults(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	defer s.Teardown()

	var runs, dones atomic.Int32
	s.EnqueueOutbox(&AsyncFunc{
		OnRun:  func(ctx context.Context) { runs.Add(1) },
		OnDone: func(ctx context.Context) { dones.Add(1) },
	})

	// Act
	s.Advance()

	// Assert
	if runs.Load() != 0 || dones.Load() != 1 {
		t.Errorf("runs=%d dones=%d, want 0 and 1", runs.Load(), dones.Load())
	}
}

// TestScheduler_AsyncTaskPanicAborts verifies the failure path
// Given: An async task whose Run panics
// When: Advance runs
// Then: Abort fires instead of Done
func TestScheduler_AsyncTaskPanicAborts(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	s.cfg.PanicHandler = &silentPanicHandler{}
	defer s.Teardown()

	var dones, aborts atomic.Int32
	s.EnqueueInbox(&AsyncFunc{
		OnRun:   func(ctx context.Context) { panic("run failed") },
		OnDone:  func(ctx context.Context) { dones.Add(1) },
		OnAbort: func() { aborts.Add(1) },
	})

	// Act
	s.Advance()
	s.Advance()

	// Assert
	if aborts.Load() != 1 {
		t.Errorf("aborts = %d, want 1", aborts.Load())
	}
	if dones.Load() != 0 {
		t.Errorf("dones = %d, want 0", dones.Load())
	}
}

// TestScheduler_ContinuousStatuses verifies per-status handling
// Given: Continuous tasks returning each status in turn
// When: Advance runs several ticks
// Then: Remove drops the task, others keep it, Repainted raises the
// redraw flag
func TestScheduler_ContinuousStatuses(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	defer s.Teardown()

	var runs atomic.Int32
	statuses := []ContinuousStatus{StatusSkipped, StatusConverged, StatusRepainted, StatusRemove}
	s.EnqueueContinuous(ContinuousFunc(func(ctx context.Context) ContinuousStatus {
		return statuses[runs.Add(1)-1]
	}))

	// Act + Assert
	s.Advance() // Skipped - stays
	s.Advance() // Converged - stays
	if s.AsyncRedrawRequested() {
		t.Error("redraw flag raised before any Repainted status")
	}

	s.Advance() // Repainted - stays, raises redraw
	if !s.AsyncRedrawRequested() {
		t.Error("redraw flag not raised after Repainted")
	}
	if s.AsyncRedrawRequested() {
		t.Error("redraw flag not consumed by the first read")
	}

	s.Advance() // Remove - dropped
	s.Advance()
	if got := runs.Load(); got != 4 {
		t.Errorf("continuous runs = %d, want 4 (task removed on tick 4)", got)
	}
}

// TestScheduler_DeleteQueueRunsFinalizers verifies deferred finalizers
// Given: Finalizers queued on the delete queue
// When: Advance runs
// Then: All of them execute on the driver tick
func TestScheduler_DeleteQueueRunsFinalizers(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	defer s.Teardown()

	var freed atomic.Int32
	for range 3 {
		s.EnqueueDeleteFunc(func() { freed.Add(1) })
	}
	if got := freed.Load(); got != 0 {
		t.Fatalf("finalizers ran at enqueue time: %d", got)
	}

	// Act
	s.Advance()

	// Assert
	if got := freed.Load(); got != 3 {
		t.Errorf("freed = %d, want 3", got)
	}
}

// TestScheduler_DropEverything verifies cooperative mass cancellation
// Given: 100 queued parallel chain instances plus async and continuous work
// When: DropEverything is called before any of it runs
// Then: Every chain is released exactly once, no Done or Exhausted fires,
// and queued finalizers still run
func TestScheduler_DropEverything(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	defer s.Teardown()

	type payload struct {
		domain *SliceDomain[int]
	}

	const instances = 100
	released := make([]atomic.Int32, instances)
	var exhausted atomic.Int32

	for i := range instances {
		i := i
		stage := NewDomainChain("doomed", func(p *payload) Domain[int] {
			return p.domain
		}).OnDone(func(ctx context.Context, p *payload) {
			exhausted.Add(1)
		}).OnAbort(func() {
			released[i].Add(1)
		})
		stage.SetIntermediary(&payload{domain: NewSliceDomain([]int{1, 2, 3})})
		s.EnqueueParallel(stage)
	}

	var aborted, freed atomic.Int32
	s.EnqueueInbox(&AsyncFunc{OnAbort: func() { aborted.Add(1) }})
	s.EnqueueDeleteFunc(func() { freed.Add(1) })

	// Act
	s.DropEverything()
	s.Advance() // abandoned assignments drain as no-ops

	// Assert
	for i := range released {
		if got := released[i].Load(); got != 1 {
			t.Fatalf("instance %d released %d times, want exactly 1", i, got)
		}
	}
	if got := exhausted.Load(); got != 0 {
		t.Errorf("Done fired %d times after DropEverything, want 0", got)
	}
	if aborted.Load() != 1 {
		t.Errorf("async aborts = %d, want 1", aborted.Load())
	}
	if freed.Load() != 1 {
		t.Errorf("finalizers run = %d, want 1", freed.Load())
	}
}

// TestScheduler_DropEverythingStopsInFlightClaims verifies mid-flight
// cancellation on a live pool
// Given: A 2-worker pool running a stage over 10000 elements, with every
// Loop call parked on a gate
// When: DropEverything fires while workers hold claimed units, then the
// gate opens
// Then: Each worker finishes only the unit it already held, the stage is
// released exactly once, and Done never fires
func TestScheduler_DropEverythingStopsInFlightClaims(t *testing.T) {
	// Arrange
	const workers = 2
	s := newTestScheduler(workers)
	defer s.Teardown()

	type payload struct {
		domain *SliceDomain[int]
	}

	var loops atomic.Int32
	var dones, releases atomic.Int32
	started := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once

	stage := NewDomainChain("cancelled", func(p *payload) Domain[int] {
		return p.domain
	}).OnLoop(func(ctx context.Context, p *payload, _ int, _ int) error {
		loops.Add(1)
		once.Do(func() { close(started) })
		<-gate
		return nil
	}).OnDone(func(ctx context.Context, p *payload) {
		dones.Add(1)
	}).OnAbort(func() {
		releases.Add(1)
	})
	stage.SetIntermediary(&payload{domain: NewSliceDomain(make([]int, 10000))})

	// Act - cancel while workers are parked inside claimed units
	s.EnqueueParallel(stage)
	<-started
	s.DropEverything()
	close(gate)
	waitFor(t, "instance retirement", func() bool { return s.Stats().Parallel == 0 })

	// Assert - in-flight units ran to completion, nothing was claimed after
	if got := loops.Load(); got > workers {
		t.Errorf("Loop ran %d times, want at most %d (one in-flight unit per worker)", got, workers)
	}
	if got := dones.Load(); got != 0 {
		t.Errorf("Done fired %d times after DropEverything, want 0", got)
	}
	if got := releases.Load(); got != 1 {
		t.Errorf("stage released %d times, want exactly 1", got)
	}
}

// TestScheduler_TeardownIsIdempotent verifies shutdown safety
// Given: A scheduler with no work ever submitted
// When: Teardown is called twice
// Then: Both calls return cleanly and the handle reports not live
func TestScheduler_TeardownIsIdempotent(t *testing.T) {
	s := newTestScheduler(2)

	s.Teardown()
	s.Teardown()

	if s.Live() {
		t.Error("Live() = true after Teardown, want false")
	}
}

// TestScheduler_EnqueueAfterTeardown verifies dead-handle rejection
// Given: A torn-down scheduler
// When: Tasks are enqueued on each queue
// Then: Release hooks run, finalizers execute inline, and the rejection
// handler observes each refusal
func TestScheduler_EnqueueAfterTeardown(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	rejections := &countingRejectionHandler{}
	s.cfg.RejectedTaskHandler = rejections
	s.Teardown()

	var aborted, abandoned, freed atomic.Int32

	// Act
	s.EnqueueInbox(&AsyncFunc{OnAbort: func() { aborted.Add(1) }})
	s.EnqueueParallel(NewDomainChain("late", func(p *struct{ domain *SliceDomain[int] }) Domain[int] {
		return p.domain
	}).OnAbort(func() { abandoned.Add(1) }))
	s.EnqueueDeleteFunc(func() { freed.Add(1) })

	// Assert
	if aborted.Load() != 1 {
		t.Errorf("aborted = %d, want 1", aborted.Load())
	}
	if abandoned.Load() != 1 {
		t.Errorf("abandoned = %d, want 1", abandoned.Load())
	}
	if freed.Load() != 1 {
		t.Errorf("freed = %d, want 1 (late finalizers run inline)", freed.Load())
	}
	if got := rejections.count.Load(); got != 2 {
		t.Errorf("rejections = %d, want 2 (finalizers are never rejected)", got)
	}
}

// TestScheduler_Stats verifies queue depth reporting
// Given: Work queued on each of the five queues
// When: Stats is called
// Then: Depths match what was queued, without draining anything
func TestScheduler_Stats(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	defer s.Teardown()

	type payload struct {
		domain *SliceDomain[int]
	}
	s.EnqueueInbox(&AsyncFunc{})
	s.EnqueueInbox(&AsyncFunc{})
	s.EnqueueOutbox(&AsyncFunc{})
	s.EnqueueContinuous(ContinuousFunc(func(ctx context.Context) ContinuousStatus { return StatusRemove }))
	s.EnqueueDeleteFunc(func() {})
	stage := NewDomainChain("counted", func(p *payload) Domain[int] { return p.domain })
	stage.SetIntermediary(&payload{domain: NewSliceDomain([]int{1})})
	s.EnqueueParallel(stage)

	// Act
	stats := s.Stats()

	// Assert
	if stats.Inbox != 2 || stats.Outbox != 1 || stats.Continuous != 1 || stats.Delete != 1 || stats.Parallel != 1 {
		t.Errorf("Stats() = %+v, want inbox=2 outbox=1 continuous=1 delete=1 parallel=1", stats)
	}
	if stats.Workers != 0 || !stats.Live {
		t.Errorf("Stats() workers=%d live=%v, want 0 and true", stats.Workers, stats.Live)
	}

	// Stats did not drain anything
	if again := s.Stats(); again != stats {
		t.Errorf("second Stats() = %+v, want %+v", again, stats)
	}
}

// TestScheduler_WorkerIndexIdentity verifies execution-context identity
// Given: A 3-worker pool running a parallel stage
// When: Loop records WorkerIndex for every element
// Then: Observed indices are within 1..3 and the driver context reports 0
func TestScheduler_WorkerIndexIdentity(t *testing.T) {
	// Arrange
	s := newTestScheduler(3)
	defer s.Teardown()

	type payload struct {
		domain *SliceDomain[int]
	}
	var badIndex atomic.Int32
	var finished atomic.Bool

	stage := NewDomainChain("identity", func(p *payload) Domain[int] {
		return p.domain
	}).OnLoop(func(ctx context.Context, p *payload, _ int, _ int) error {
		if idx := WorkerIndex(ctx); idx < 1 || idx > 3 {
			badIndex.Add(1)
		}
		if SchedulerFrom(ctx) != s {
			badIndex.Add(1)
		}
		return nil
	}).OnDone(func(ctx context.Context, p *payload) {
		finished.Store(true)
	})
	stage.SetIntermediary(&payload{domain: NewSliceDomain(make([]int, 64))})

	// Act
	s.EnqueueParallel(stage)
	waitFor(t, "identity stage exhaustion", finished.Load)

	// Assert
	if got := badIndex.Load(); got != 0 {
		t.Errorf("%d loop calls saw an unexpected identity", got)
	}
	if got := WorkerIndex(context.Background()); got != 0 {
		t.Errorf("WorkerIndex(background) = %d, want 0", got)
	}
}

// TestScheduler_BatchHistory verifies batch records
// Given: Two parallel stages run to completion
// When: RecentBatches is queried
// Then: Records appear newest first with names and fan-out filled in
func TestScheduler_BatchHistory(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	defer s.Teardown()

	type payload struct {
		domain *SliceDomain[int]
	}
	for _, name := range []string{"first", "second"} {
		stage := NewDomainChain(name, func(p *payload) Domain[int] { return p.domain })
		stage.SetIntermediary(&payload{domain: NewSliceDomain([]int{1})})
		s.EnqueueParallel(stage)
		s.Advance()
	}

	// Act
	records := s.RecentBatches(0)

	// Assert
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Name != "second" || records[1].Name != "first" {
		t.Errorf("record order = [%s, %s], want newest first [second, first]", records[0].Name, records[1].Name)
	}
	if records[0].Workers != 1 {
		t.Errorf("record workers = %d, want 1 in single-threaded mode", records[0].Workers)
	}
	if records[0].Abandoned || records[0].Panicked {
		t.Errorf("record flags = %+v, want clean completion", records[0])
	}
}

// TestScheduler_MaxWorkersCapsFanout verifies per-task fan-out caps
// Given: A 4-worker pool and a stage capped at 2 workers
// When: The stage is enqueued
// Then: Its batch record reports a fan-out of 2
func TestScheduler_MaxWorkersCapsFanout(t *testing.T) {
	// Arrange
	s := newTestScheduler(4)
	defer s.Teardown()

	type payload struct {
		domain *SliceDomain[int]
	}
	var finished atomic.Bool
	stage := NewDomainChain("capped", func(p *payload) Domain[int] {
		return p.domain
	}).OnDone(func(ctx context.Context, p *payload) {
		finished.Store(true)
	}).SetMaxWorkers(2)
	stage.SetIntermediary(&payload{domain: NewSliceDomain(make([]int, 16))})

	// Act
	s.EnqueueParallel(stage)
	waitFor(t, "capped stage exhaustion", finished.Load)

	// Assert
	records := s.RecentBatches(1)
	if len(records) != 1 || records[0].Workers != 2 {
		t.Fatalf("records = %+v, want one record with workers=2", records)
	}
}

// TestScheduler_ParallelTaskPanicAbandons verifies instance failure
// Given: A stage whose every Loop call panics
// When: It runs to exhaustion of its assignments
// Then: Done never fires and the release hook runs exactly once
func TestScheduler_ParallelTaskPanicAbandons(t *testing.T) {
	// Arrange
	s := newTestScheduler(0)
	s.cfg.PanicHandler = &silentPanicHandler{}
	defer s.Teardown()

	var dones, releases atomic.Int32
	stage := &panickyStage{
		inner: NewDomainChain("explosive", func(p *panickyPayload) Domain[int] {
			return p.domain
		}).OnDone(func(ctx context.Context, p *panickyPayload) {
			dones.Add(1)
		}).OnAbort(func() {
			releases.Add(1)
		}),
	}
	stage.inner.SetIntermediary(&panickyPayload{domain: NewSliceDomain([]int{1})})

	// Act
	s.EnqueueParallel(stage)
	s.Advance()

	// Assert
	if dones.Load() != 0 {
		t.Errorf("dones = %d, want 0", dones.Load())
	}
	if releases.Load() != 1 {
		t.Errorf("releases = %d, want 1", releases.Load())
	}
}

type panickyPayload struct {
	domain *SliceDomain[int]
}

type panickyStage struct {
	inner *DomainChain[panickyPayload, int]
}

func (p *panickyStage) Run(ctx context.Context)       { panic("run exploded") }
func (p *panickyStage) Exhausted(ctx context.Context) { p.inner.Exhausted(ctx) }
func (p *panickyStage) Abandon()                      { p.inner.Abandon() }
func (p *panickyStage) MaxWorkers() int               { return 0 }

type silentPanicHandler struct{}

func (h *silentPanicHandler) HandlePanic(ctx context.Context, site string, workerIndex int, panicInfo any, stackTrace []byte) {
}

type countingRejectionHandler struct {
	count atomic.Int32
}

func (h *countingRejectionHandler) HandleRejectedTask(queue string, reason string) {
	h.count.Add(1)
}
