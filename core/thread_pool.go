package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meshforge/scheduler/internal/cpu"
)

// EstimateConcurrency reports the hardware concurrency the pool sizing
// is derived from.
func EstimateConcurrency() int {
	return runtime.NumCPU()
}

// parallelInstance is one enqueued parallel task fanned out across the
// pool. The in-flight count is preset to the fan-out at enqueue time;
// every assignment return decrements it, and whoever reaches zero
// retires the instance. That makes the count double as the exhaustion
// barrier: Exhausted cannot fire while any worker is still inside Run.
type parallelInstance struct {
	task     ParallelTask
	name     string
	fanout   int
	enqueued time.Time

	inflight  atomic.Int32
	abandoned atomic.Bool
}

// namedTask lets tasks carry a human-readable name into batch records.
type namedTask interface {
	Name() string
}

func newParallelInstance(task ParallelTask, fanout int) *parallelInstance {
	name := "parallel"
	if nt, ok := task.(namedTask); ok && nt.Name() != "" {
		name = nt.Name()
	}
	inst := &parallelInstance{
		task:     task,
		name:     name,
		fanout:   fanout,
		enqueued: time.Now(),
	}
	inst.inflight.Store(int32(fanout))
	return inst
}

// threadPool runs the pool workers. Workers only ever execute parallel
// assignments; everything else belongs to the driver tick.
type threadPool struct {
	group  *errgroup.Group
	cancel context.CancelFunc
}

func startThreadPool(s *Scheduler, workers int) *threadPool {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	for i := 1; i <= workers; i++ {
		index := i
		group.Go(func() error {
			return s.workerLoop(gctx, index)
		})
	}

	return &threadPool{group: group, cancel: cancel}
}

// stop signals the workers and joins them. Workers finish the claim
// they hold; nothing is pre-empted mid-unit.
func (p *threadPool) stop() {
	p.cancel()
	_ = p.group.Wait()
}

func (s *Scheduler) workerLoop(ctx context.Context, index int) error {
	if s.cfg.PinWorkers {
		if err := cpu.Pin(index); err != nil {
			s.cfg.Logger.Debug("worker CPU pinning unavailable",
				F("worker", index), F("error", err))
		}
	}

	wctx := s.taskContext(ctx, index)
	for {
		inst, ok := s.nextAssignment(ctx)
		if !ok {
			return nil
		}
		s.runAssignment(wctx, inst)
	}
}

// nextAssignment blocks until an assignment is available or the pool is
// stopping. The signal channel only hints that work may exist; the
// queue is the source of truth, so a stale wakeup just loops.
func (s *Scheduler) nextAssignment(ctx context.Context) (*parallelInstance, bool) {
	for {
		if inst, ok := s.pending.Pop(); ok {
			return inst, true
		}
		select {
		case <-ctx.Done():
			// Drain whatever is left so shutdown never strands an
			// assignment that another worker's refcount depends on.
			if inst, ok := s.pending.Pop(); ok {
				return inst, true
			}
			return nil, false
		case <-s.signal:
		}
	}
}

// runAssignment executes one fanned-out slot of a parallel instance and
// settles the instance when this was the last slot in flight.
func (s *Scheduler) runAssignment(ctx context.Context, inst *parallelInstance) {
	if !inst.abandoned.Load() {
		if err := s.guardParallel(ctx, inst); err != nil {
			// A panic in Run poisons the instance: release it now so
			// sibling workers stop at their next unit boundary.
			inst.abandoned.Store(true)
			inst.task.Abandon()
		}
	}
	if inst.inflight.Add(-1) == 0 {
		s.retire(ctx, inst)
	}
}

func (s *Scheduler) guardParallel(ctx context.Context, inst *parallelInstance) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.cfg.PanicHandler.HandlePanic(ctx, inst.name+" (run)", WorkerIndex(ctx), rec, debug.Stack())
			s.cfg.Metrics.RecordTaskPanic(inst.name+" (run)", rec)
			err = errTaskPanicked
		}
	}()
	inst.task.Run(ctx)
	return nil
}

// retire fires exactly once, on whichever execution context decremented
// the in-flight count to zero. The domain is exhausted and no slot can
// still be inside Run, so Exhausted gets an uncontended view of the
// task's intermediary state.
func (s *Scheduler) retire(ctx context.Context, inst *parallelInstance) {
	s.instancesMu.Lock()
	delete(s.instances, inst)
	s.instancesMu.Unlock()

	record := BatchRecord{
		Name:      inst.name,
		Workers:   inst.fanout,
		StartedAt: inst.enqueued,
	}

	if inst.abandoned.Load() {
		record.Abandoned = true
		inst.task.Abandon()
	} else if err := s.guard(ctx, inst.name+" (exhausted)", func() {
		inst.task.Exhausted(ctx)
	}); err != nil {
		record.Panicked = true
		inst.task.Abandon()
	}

	record.FinishedAt = time.Now()
	record.Duration = record.FinishedAt.Sub(record.StartedAt)
	s.history.Add(record)
	s.cfg.Metrics.RecordBatchDuration(inst.name, record.Duration)
}
