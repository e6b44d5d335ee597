// Package scheduler is a parallel task scheduling engine built around a
// driver loop and a pool of workers. The driver owns five typed work
// queues — inbox, outbox, parallel, continuous, delete — and pumps them
// once per Advance tick, while pool workers race through fanned-out
// parallel tasks that claim work from a shared domain.
//
// The package-level API manages one process-wide default handle:
//
//	scheduler.Setup(false)
//	defer scheduler.Teardown()
//
//	seq := scheduler.NewSequence(len(items), scheduler.PoolSize())
//	// ... enqueue parallel stages, then drive:
//	for running {
//		scheduler.Advance()
//	}
//
// Applications needing multiple independent handles use core.New
// directly; the facade forwards to a single core.Scheduler.
package scheduler
