//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and binds that
// thread to one CPU, chosen by cpuID modulo the CPU count. Workers that
// call it stay pinned for their lifetime.
func Pin(cpuID int) error {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &mask)
}
