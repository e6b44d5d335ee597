package scheduler

import (
	"iter"

	"github.com/meshforge/scheduler/core"
)

// Re-exported types so most applications only import this package.
type (
	Scheduler        = core.Scheduler
	Config           = core.Config
	SchedulerStats   = core.SchedulerStats
	BatchRecord      = core.BatchRecord
	ContinuousStatus = core.ContinuousStatus

	AsyncTask      = core.AsyncTask
	ParallelTask   = core.ParallelTask
	ContinuousTask = core.ContinuousTask
	DeleteTask     = core.DeleteTask
	AsyncFunc      = core.AsyncFunc
	ContinuousFunc = core.ContinuousFunc
	Finalizer      = core.Finalizer

	SequenceGenerator = core.SequenceGenerator
	Handle            = core.Handle

	Logger              = core.Logger
	Field               = core.Field
	PanicHandler        = core.PanicHandler
	Metrics             = core.Metrics
	RejectedTaskHandler = core.RejectedTaskHandler
)

// Generic aliases.
type (
	Domain[E any]              = core.Domain[E]
	SliceDomain[E any]         = core.SliceDomain[E]
	IterDomain[E any]          = core.IterDomain[E]
	LinkedDomain[E comparable] = core.LinkedDomain[E]
	Accumulator[T any]         = core.Accumulator[T]
	Registry[T any]            = core.Registry[T]
	Stage[I any]               = core.Stage[I]
	DomainChain[I, E any]      = core.DomainChain[I, E]
	DomainHandler[I, E any]    = core.DomainHandler[I, E]
	ChainBuilder[I any]        = core.ChainBuilder[I]
)

const (
	StatusRemove    = core.StatusRemove
	StatusSkipped   = core.StatusSkipped
	StatusConverged = core.StatusConverged
	StatusRepainted = core.StatusRepainted
)

// WorkerIndex reports the execution-context identity carried by ctx:
// 0 for the driver, 1..PoolSize for pool workers.
var WorkerIndex = core.WorkerIndex

// SchedulerFrom retrieves the handle that dispatched the current task.
var SchedulerFrom = core.SchedulerFrom

// F builds a structured log field.
var F = core.F

// NewSequence builds a lane generator over [0, count).
var NewSequence = core.NewSequence

// NewAccumulator sizes a lane accumulator for s's pool.
func NewAccumulator[T any](s *Scheduler) *Accumulator[T] {
	return core.NewAccumulator[T](s)
}

// NewSliceDomain wraps a slice in a claimable domain.
func NewSliceDomain[E any](elements []E) *SliceDomain[E] {
	return core.NewSliceDomain(elements)
}

// NewIterDomain wraps a forward-only sequence in a claimable domain.
func NewIterDomain[E any](seq iter.Seq[E]) *IterDomain[E] {
	return core.NewIterDomain(seq)
}

// NewLinkedDomain wraps a next-pointer traversal in a claimable domain.
func NewLinkedDomain[E comparable](head E, next func(E) E) *LinkedDomain[E] {
	return core.NewLinkedDomain(head, next)
}

// NewDomainChain starts a closure-configured pipeline stage.
func NewDomainChain[I, E any](name string, accessor func(*I) Domain[E]) *DomainChain[I, E] {
	return core.NewDomainChain[I, E](name, accessor)
}

// NewDomainChainFor starts a handler-backed pipeline stage.
func NewDomainChainFor[I, E any](name string, accessor func(*I) Domain[E], handler DomainHandler[I, E]) *DomainChain[I, E] {
	return core.NewDomainChainFor[I, E](name, accessor, handler)
}

// NewChain starts a pipeline builder at head.
func NewChain[I any](head Stage[I]) *ChainBuilder[I] {
	return core.NewChain[I](head)
}

// NewRegistry creates a weak-pointer handle registry.
func NewRegistry[T any]() *Registry[T] {
	return core.NewRegistry[T]()
}
