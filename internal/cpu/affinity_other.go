//go:build !linux

package cpu

import "errors"

// Pin is unsupported off Linux; callers treat the error as advisory.
func Pin(cpuID int) error {
	return errors.ErrUnsupported
}
