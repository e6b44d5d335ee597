package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a user-supplied callback panics.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called after a panic has been recovered.
	//
	// Parameters:
	// - ctx: The context of the panicked callback
	// - site: Where the panic happened (task name plus hook, e.g. "mesh normals (run)")
	// - workerIndex: The worker that recovered it (0 for the driver)
	// - panicInfo: The recovered panic value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, site string, workerIndex int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, site string, workerIndex int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
		workerIndex, site, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting dispatch.
type Metrics interface {
	// RecordBatchDuration records the wall time of one parallel task
	// instance, from enqueue to its exhaustion transition.
	RecordBatchDuration(taskName string, duration time.Duration)

	// RecordTaskPanic records a recovered panic at the given site.
	RecordTaskPanic(site string, panicInfo any)

	// RecordQueueDepth records the depth of one of the scheduler's
	// queues ("inbox", "outbox", "parallel", "continuous", "delete").
	RecordQueueDepth(queue string, depth int)

	// RecordTaskRejected records a task refused at enqueue time.
	RecordTaskRejected(queue string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordBatchDuration is a no-op.
func (m *NilMetrics) RecordBatchDuration(taskName string, duration time.Duration) {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(site string, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(queue string, depth int) {}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(queue string, reason string) {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task is refused at enqueue time,
// which happens only when the scheduler handle is no longer live. The
// matching release hook (Abort/Abandon) has already run by the time the
// handler is invoked; this is the observation point, not the cleanup.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a task is rejected.
	//
	// Parameters:
	// - queue: The queue the task was bound for
	// - reason: Why the task was rejected (e.g., "teardown")
	HandleRejectedTask(queue string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(queue string, reason string) {
	fmt.Printf("[Queue %s] Task rejected: %s\n", queue, reason)
}
