package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Scheduler is the process-wide scheduling handle: it owns the worker
// pool and the five work queues (inbox, outbox, parallel, continuous,
// delete). Create one with New and destroy it with Teardown. Enqueue
// methods are callable from any goroutine; Advance and Teardown belong
// to the driver.
type Scheduler struct {
	cfg     Config
	workers int

	inbox      *ringQueue[AsyncTask]
	outbox     *ringQueue[AsyncTask]
	deletes    *ringQueue[DeleteTask]
	continuous *fifoQueue[ContinuousTask]

	// Parallel dispatch: each enqueued task becomes one instance fanned
	// out as several queued assignments; workers race to pull them.
	pending *fifoQueue[*parallelInstance]
	signal  chan struct{}

	instancesMu sync.Mutex
	instances   map[*parallelInstance]struct{}

	live      atomic.Bool
	advancing atomic.Bool
	redraw    atomic.Bool

	driverCtx    context.Context
	pool         *threadPool
	teardownOnce sync.Once

	history batchHistory
}

// New creates a live scheduler handle and starts its worker pool.
// The pool gets EstimateConcurrency()-1 workers so the driver thread
// keeps a core for itself; Config.Workers overrides the count and
// Config.ForceSingleThread drops to zero workers for debugging.
func New(cfg Config) *Scheduler {
	cfg.fillDefaults()

	workers := 0
	if !cfg.ForceSingleThread {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		} else {
			workers = max(EstimateConcurrency()-1, 0)
		}
	}

	s := &Scheduler{
		cfg:        cfg,
		workers:    workers,
		inbox:      newRingQueue[AsyncTask](),
		outbox:     newRingQueue[AsyncTask](),
		deletes:    newRingQueue[DeleteTask](),
		continuous: newFIFOQueue[ContinuousTask](),
		pending:    newFIFOQueue[*parallelInstance](),
		signal:     make(chan struct{}, workers*2+2),
		instances:  make(map[*parallelInstance]struct{}),
		history:    newBatchHistory(cfg.HistoryCapacity),
	}
	s.driverCtx = s.taskContext(context.Background(), 0)
	s.live.Store(true)

	if workers > 0 {
		s.pool = startThreadPool(s, workers)
	}
	return s
}

// taskContext stamps a context with the scheduler handle and the stable
// identity of the execution context it will run on.
func (s *Scheduler) taskContext(parent context.Context, index int) context.Context {
	return withScheduler(withWorkerIndex(parent, index), s)
}

// Live reports whether the handle is between New and Teardown.
func (s *Scheduler) Live() bool {
	return s.live.Load()
}

// PoolSize returns the number of pool workers, excluding the driver.
func (s *Scheduler) PoolSize() int {
	return s.workers
}

// =============================================================================
// Submission API
// =============================================================================

// EnqueueInbox queues an async job; its Run executes on the next tick.
func (s *Scheduler) EnqueueInbox(task AsyncTask) {
	if task == nil {
		return
	}
	if !s.Live() {
		task.Abort()
		s.reject("inbox")
		return
	}
	s.inbox.Push(task)
}

// EnqueueOutbox queues an already-run async job so its Done executes on
// the driver. Workers use this to hand finished results to the owning
// context.
func (s *Scheduler) EnqueueOutbox(task AsyncTask) {
	if task == nil {
		return
	}
	if !s.Live() {
		task.Abort()
		s.reject("outbox")
		return
	}
	s.outbox.Push(task)
}

// EnqueueContinuous queues a recurring job re-evaluated once per tick.
func (s *Scheduler) EnqueueContinuous(task ContinuousTask) {
	if task == nil {
		return
	}
	if !s.Live() {
		s.reject("continuous")
		return
	}
	s.continuous.Push(task)
}

// EnqueueDelete defers a finalizer to the next tick, when no worker can
// still be touching what it releases.
func (s *Scheduler) EnqueueDelete(task DeleteTask) {
	if task == nil {
		return
	}
	if !s.Live() {
		// Past teardown there is no concurrency left, so late
		// finalizers run right here rather than leak.
		s.runDelete(task)
		return
	}
	s.deletes.Push(task)
}

// EnqueueDeleteFunc is EnqueueDelete for a plain function.
func (s *Scheduler) EnqueueDeleteFunc(fn func()) {
	if fn == nil {
		return
	}
	s.EnqueueDelete(Finalizer(fn))
}

// EnqueueParallel fans the task out across the worker pool. Every
// assignment pulls claims from the task's domain until it is exhausted;
// the task's Exhausted hook fires exactly once afterwards.
func (s *Scheduler) EnqueueParallel(task ParallelTask) {
	if task == nil {
		return
	}
	if !s.Live() {
		task.Abandon()
		s.reject("parallel")
		return
	}

	fanout := s.fanout(task.MaxWorkers())
	inst := newParallelInstance(task, fanout)

	s.instancesMu.Lock()
	s.instances[inst] = struct{}{}
	s.instancesMu.Unlock()

	for range fanout {
		s.pending.Push(inst)
		s.wake()
	}
}

// fanout decides how many assignments one parallel task gets.
func (s *Scheduler) fanout(maxWorkers int) int {
	n := s.workers
	if n < 1 {
		n = 1 // driver executes inline during Advance
	}
	if maxWorkers > 0 && maxWorkers < n {
		n = maxWorkers
	}
	return n
}

func (s *Scheduler) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but the assignment is already queued;
		// some worker will observe it on its next pass.
	}
}

func (s *Scheduler) reject(queue string) {
	s.cfg.RejectedTaskHandler.HandleRejectedTask(queue, "teardown")
	s.cfg.Metrics.RecordTaskRejected(queue, "teardown")
}

// =============================================================================
// Driver loop
// =============================================================================

// Advance runs one driver tick: inbox jobs run and move to the outbox,
// outbox jobs complete, continuous tasks re-evaluate, queued finalizers
// run. In single-threaded mode it also executes pending parallel
// assignments inline. Only the driver may call Advance.
func (s *Scheduler) Advance() {
	if !s.advancing.CompareAndSwap(false, true) {
		// Two concurrent ticks means two driver threads: a defect, not
		// a recoverable condition.
		panic("scheduler: Advance reentered; it must only be called from the driver thread")
	}
	defer s.advancing.Store(false)

	ctx := s.driverCtx

	// Inbox: run each job, then park it in the outbox so Done completes
	// it once the outbox drains below.
	for {
		task, ok := s.inbox.Pop()
		if !ok {
			break
		}
		if err := s.guard(ctx, "inbox task (run)", func() { task.Run(ctx) }); err != nil {
			task.Abort()
			continue
		}
		s.outbox.Push(task)
	}

	// Outbox: complete each finished job.
	for {
		task, ok := s.outbox.Pop()
		if !ok {
			break
		}
		if err := s.guard(ctx, "outbox task (done)", func() { task.Done(ctx) }); err != nil {
			task.Abort()
		}
	}

	// Continuous: re-evaluate every recurring job, dropping the ones
	// that ask to leave. A panicking job is dropped too; it cannot be
	// trusted to converge next tick.
	for _, task := range s.continuous.PopAll() {
		status := StatusRemove
		err := s.guard(ctx, "continuous task (run)", func() { status = task.Run(ctx) })
		if err != nil || status == StatusRemove {
			continue
		}
		if status == StatusRepainted {
			s.RequestAsyncRedraw()
		}
		s.continuous.Push(task)
	}

	// Delete: run deferred finalizers now that nothing else this tick
	// can be touching their targets.
	for {
		task, ok := s.deletes.Pop()
		if !ok {
			break
		}
		s.runDelete(task)
	}

	// Single-threaded mode: the driver stands in for the pool.
	if s.workers == 0 {
		for {
			inst, ok := s.pending.Pop()
			if !ok {
				break
			}
			s.runAssignment(ctx, inst)
		}
	}

	s.publishQueueDepths()
}

func (s *Scheduler) runDelete(task DeleteTask) {
	_ = s.guard(s.driverCtx, "delete task (run)", task.Run)
}

// DropEverything cooperatively cancels all outstanding work: queued
// async jobs abort, pending and in-flight parallel instances are marked
// abandoned (their baton passes are suppressed and their chains
// released), continuous tasks are dropped, queued finalizers run.
// In-flight claims finish the unit they already hold; no thread is
// pre-empted mid-slice. Safe to call while workers hold partial claims.
func (s *Scheduler) DropEverything() {
	// Abandoned assignments stay queued: each one must still be
	// consumed so the instance refcount resolves and the chain frees.
	s.instancesMu.Lock()
	dropped := make([]*parallelInstance, 0, len(s.instances))
	for inst := range s.instances {
		inst.abandoned.Store(true)
		dropped = append(dropped, inst)
	}
	s.instancesMu.Unlock()

	// Release each task now, outside the lock: workers already inside
	// Run poll their task's own abandoned state between claims, so the
	// release is what stops them at the next unit boundary instead of
	// letting them drain the domain.
	for _, inst := range dropped {
		inst.task.Abandon()
	}

	for {
		task, ok := s.inbox.Pop()
		if !ok {
			break
		}
		task.Abort()
	}
	for {
		task, ok := s.outbox.Pop()
		if !ok {
			break
		}
		task.Abort()
	}

	s.continuous.Clear()

	for {
		task, ok := s.deletes.Pop()
		if !ok {
			break
		}
		s.runDelete(task)
	}
}

// Teardown signals all workers to exit after their current claim, joins
// them, and releases everything still queued. Safe to call even if no
// work was ever submitted, and safe to call twice.
func (s *Scheduler) Teardown() {
	s.teardownOnce.Do(func() {
		s.live.Store(false)
		s.DropEverything()

		if s.pool != nil {
			s.pool.stop()
		}

		// Workers are gone; consume leftover assignments inline so
		// refcounts resolve and abandoned chains release.
		for {
			inst, ok := s.pending.Pop()
			if !ok {
				break
			}
			s.runAssignment(s.driverCtx, inst)
		}
	})
}

// =============================================================================
// Redraw flag
// =============================================================================

// RequestAsyncRedraw raises the redraw flag for the presentation layer.
func (s *Scheduler) RequestAsyncRedraw() {
	s.redraw.Store(true)
}

// AsyncRedrawRequested consumes the redraw flag.
func (s *Scheduler) AsyncRedrawRequested() bool {
	return s.redraw.Swap(false)
}

// =============================================================================
// Observability
// =============================================================================

// SchedulerStats reports queue depths and pool state. Side-effect-free.
type SchedulerStats struct {
	Inbox      int
	Outbox     int
	Parallel   int // live parallel task instances, pending or claiming
	Continuous int
	Delete     int
	Workers    int
	Live       bool
}

// Stats returns a snapshot of queue depths for observability.
func (s *Scheduler) Stats() SchedulerStats {
	s.instancesMu.Lock()
	parallel := len(s.instances)
	s.instancesMu.Unlock()

	return SchedulerStats{
		Inbox:      s.inbox.Len(),
		Outbox:     s.outbox.Len(),
		Parallel:   parallel,
		Continuous: s.continuous.Len(),
		Delete:     s.deletes.Len(),
		Workers:    s.workers,
		Live:       s.Live(),
	}
}

// RecentBatches returns completed parallel batch records, newest first.
func (s *Scheduler) RecentBatches(limit int) []BatchRecord {
	return s.history.Recent(limit)
}

func (s *Scheduler) publishQueueDepths() {
	stats := s.Stats()
	s.cfg.Metrics.RecordQueueDepth("inbox", stats.Inbox)
	s.cfg.Metrics.RecordQueueDepth("outbox", stats.Outbox)
	s.cfg.Metrics.RecordQueueDepth("parallel", stats.Parallel)
	s.cfg.Metrics.RecordQueueDepth("continuous", stats.Continuous)
	s.cfg.Metrics.RecordQueueDepth("delete", stats.Delete)
}

// =============================================================================
// Failure containment
// =============================================================================

// guard runs fn with panic recovery; a recovered panic is routed to the
// panic handler and surfaced as an error so callers can run the
// matching release hook.
func (s *Scheduler) guard(ctx context.Context, site string, fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.cfg.PanicHandler.HandlePanic(ctx, site, WorkerIndex(ctx), rec, debug.Stack())
			s.cfg.Metrics.RecordTaskPanic(site, rec)
			err = fmt.Errorf("%s panicked: %v", site, rec)
		}
	}()
	fn()
	return nil
}

// reportElementFailure logs a failed domain element; the claim protocol
// has already moved on.
func (s *Scheduler) reportElementFailure(taskName string, index int, cause error) {
	s.cfg.Logger.Warn("parallel loop element failed",
		F("task", taskName), F("index", index), F("error", cause))
}

// reportElementPanic records a recovered per-element panic.
func (s *Scheduler) reportElementPanic(ctx context.Context, taskName string, index int, rec any, stack []byte) {
	s.cfg.PanicHandler.HandlePanic(ctx, taskName+" (loop)", WorkerIndex(ctx), rec, stack)
	s.cfg.Metrics.RecordTaskPanic(taskName+" (loop)", rec)
}

// Logger exposes the configured logger to collaborating packages.
func (s *Scheduler) Logger() Logger {
	return s.cfg.Logger
}
