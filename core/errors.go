package core

import "errors"

var (
	// errTaskPanicked marks a recovered panic inside a task callback.
	errTaskPanicked = errors.New("task panicked")

	// ErrDeadHandle is returned by operations that need a live
	// scheduler between New and Teardown.
	ErrDeadHandle = errors.New("scheduler handle is not live")
)
