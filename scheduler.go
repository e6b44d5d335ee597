package scheduler

import (
	"sync"

	"github.com/meshforge/scheduler/core"
)

var (
	defaultMu        sync.Mutex
	defaultScheduler *core.Scheduler
)

// Setup creates the process-wide default handle. forceSingleThread
// disables the worker pool for debugging; parallel work then runs
// inline during Advance. Calling Setup while a handle is live panics.
func Setup(forceSingleThread bool) {
	cfg := core.DefaultConfig()
	cfg.ForceSingleThread = forceSingleThread
	SetupWithConfig(cfg)
}

// SetupWithConfig is Setup with full control over the configuration.
func SetupWithConfig(cfg core.Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultScheduler != nil && defaultScheduler.Live() {
		panic("scheduler: Setup called while the default handle is live")
	}
	defaultScheduler = core.New(cfg)
}

// Teardown destroys the default handle: cancels outstanding work, joins
// the workers, releases queued tasks. Safe without a prior Setup and
// safe to call twice.
func Teardown() {
	defaultMu.Lock()
	s := defaultScheduler
	defaultScheduler = nil
	defaultMu.Unlock()

	if s != nil {
		s.Teardown()
	}
}

// Default returns the default handle. It panics before Setup; use
// Live() to probe.
func Default() *core.Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultScheduler == nil {
		panic("scheduler: Setup has not been called")
	}
	return defaultScheduler
}

// Live reports whether a default handle exists and is usable.
func Live() bool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultScheduler != nil && defaultScheduler.Live()
}

// Advance pumps the default handle's queues for one driver tick.
func Advance() { Default().Advance() }

// DropEverything cooperatively cancels all outstanding work on the
// default handle.
func DropEverything() { Default().DropEverything() }

// EnqueueInbox queues an async job on the default handle.
func EnqueueInbox(task AsyncTask) { Default().EnqueueInbox(task) }

// EnqueueOutbox queues a finished async job for completion.
func EnqueueOutbox(task AsyncTask) { Default().EnqueueOutbox(task) }

// EnqueueParallel fans a task out across the default handle's pool.
func EnqueueParallel(task ParallelTask) { Default().EnqueueParallel(task) }

// EnqueueContinuous queues a recurring per-tick job.
func EnqueueContinuous(task ContinuousTask) { Default().EnqueueContinuous(task) }

// EnqueueDelete defers a finalizer to the next tick.
func EnqueueDelete(task DeleteTask) { Default().EnqueueDelete(task) }

// EnqueueDeleteFunc is EnqueueDelete for a plain function.
func EnqueueDeleteFunc(fn func()) { Default().EnqueueDeleteFunc(fn) }

// Stats snapshots the default handle's queue depths.
func Stats() SchedulerStats { return Default().Stats() }

// PoolSize returns the default handle's worker count.
func PoolSize() int { return Default().PoolSize() }

// RecentBatches returns recent parallel batch records, newest first.
func RecentBatches(limit int) []BatchRecord { return Default().RecentBatches(limit) }

// RequestAsyncRedraw raises the redraw flag on the default handle.
func RequestAsyncRedraw() { Default().RequestAsyncRedraw() }

// AsyncRedrawRequested consumes the redraw flag.
func AsyncRedrawRequested() bool { return Default().AsyncRedrawRequested() }

// EstimateConcurrency reports the hardware concurrency used for sizing.
func EstimateConcurrency() int { return core.EstimateConcurrency() }
