package core

import "context"

// Task is the unit of work. Four capability sets exist, one per queue
// kind: AsyncTask (inbox/outbox), ParallelTask (fan-out), ContinuousTask
// (per-tick), DeleteTask (deferred finalizers).

// AsyncTask is a one-shot job with an explicit completion protocol.
// Run executes when the inbox drains; the task then moves to the outbox,
// where Done completes it on the driver. Abort runs instead of Done when
// the task is dropped, so resources are released on every path.
type AsyncTask interface {
	Run(ctx context.Context)
	Done(ctx context.Context)
	Abort()
}

// ParallelTask is a fan-out workload. Many workers call Run concurrently;
// each Run claims units of the task's domain until no claimable work
// remains, then returns.
type ParallelTask interface {
	Run(ctx context.Context)

	// Exhausted fires exactly once, strictly after every Run invocation
	// has returned and the domain reports no more claimable work.
	Exhausted(ctx context.Context)

	// Abandon suppresses Exhausted and releases owned state, including
	// any chained follow-up stages. Must be idempotent. Claims already
	// in flight still finish the unit they hold.
	Abandon()

	// MaxWorkers caps fan-out for this task; zero means the whole pool.
	MaxWorkers() int
}

// ContinuousStatus is returned by a ContinuousTask on every invocation.
type ContinuousStatus int

const (
	// StatusRemove drops the task from the continuous queue.
	StatusRemove ContinuousStatus = iota

	// StatusSkipped means the task had nothing to do this tick.
	StatusSkipped

	// StatusConverged means the task finished its work but stays
	// queued to watch for new input.
	StatusConverged

	// StatusRepainted means the task changed visible state; the
	// scheduler raises the async redraw flag.
	StatusRepainted
)

// ContinuousTask runs once per Advance tick until it asks to be removed.
type ContinuousTask interface {
	Run(ctx context.Context) ContinuousStatus
}

// DeleteTask is a deferred finalizer, run only on the driver when no
// worker can be touching the resources it releases.
type DeleteTask interface {
	Run()
}

// Finalizer adapts a plain function to DeleteTask.
type Finalizer func()

func (f Finalizer) Run() { f() }

// AsyncFunc adapts closures to AsyncTask. Nil hooks are skipped.
type AsyncFunc struct {
	OnRun   func(ctx context.Context)
	OnDone  func(ctx context.Context)
	OnAbort func()
}

func (t *AsyncFunc) Run(ctx context.Context) {
	if t.OnRun != nil {
		t.OnRun(ctx)
	}
}

func (t *AsyncFunc) Done(ctx context.Context) {
	if t.OnDone != nil {
		t.OnDone(ctx)
	}
}

func (t *AsyncFunc) Abort() {
	if t.OnAbort != nil {
		t.OnAbort()
	}
}

// ContinuousFunc adapts a closure to ContinuousTask.
type ContinuousFunc func(ctx context.Context) ContinuousStatus

func (f ContinuousFunc) Run(ctx context.Context) ContinuousStatus { return f(ctx) }

// =============================================================================
// Context Helpers
// =============================================================================

type workerIndexKeyType struct{}

var workerIndexKey workerIndexKeyType

// WorkerIndex reports the stable identity of the execution context that
// ctx belongs to. The driver is always 0; pool workers are 1..PoolSize.
// Per-worker storage (accumulator lanes) keys off this value.
func WorkerIndex(ctx context.Context) int {
	if v := ctx.Value(workerIndexKey); v != nil {
		return v.(int)
	}
	return 0
}

func withWorkerIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, workerIndexKey, index)
}

type schedulerKeyType struct{}

var schedulerKey schedulerKeyType

// SchedulerFrom retrieves the Scheduler that dispatched the current task.
// Returns nil outside a dispatched task context.
func SchedulerFrom(ctx context.Context) *Scheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

func withScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey, s)
}
