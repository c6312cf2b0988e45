//go:build linux

package clocksrc

import "golang.org/x/sys/unix"

// SystemAdjuster applies a clamped microsecond offset to the kernel
// wall clock through adjtimex(2), the Linux superset of POSIX
// adjtime. ADJ_OFFSET tells the kernel to slew the clock smoothly by
// the given amount, which is also where the microsecond carry/borrow
// across the second boundary that spec.md's adjust contract mentions
// is actually performed - the kernel does it, not this binding.
type SystemAdjuster struct{}

// NewSystemAdjuster returns the production Adjuster.
func NewSystemAdjuster() SystemAdjuster {
	return SystemAdjuster{}
}

func (SystemAdjuster) StepMicros(deltaUs int64) error {
	buf := &unix.Timex{
		Modes:  unix.ADJ_OFFSET | unix.ADJ_MICRO,
		Offset: deltaUs,
	}
	_, err := unix.Adjtimex(buf)
	return err
}
