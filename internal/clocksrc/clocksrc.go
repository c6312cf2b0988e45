// Package clocksrc supplies the two time domains the scheduler needs
// (monotonic uptime and wall clock) plus the real OS binding for the
// slew primitive in internal/discipline, generalising the teacher's
// single Clock.Now() abstraction (rtcmlogger/clock) into the pair of
// independent clocks spec.md's scheduler reasons about.
package clocksrc

import "time"

// Clock supplies both time domains as microsecond integers, matching
// the resolution the scheduler and frame encoder compute edges in.
type Clock interface {
	MonotonicMicros() int64
	WallMicros() int64
}

// System is the production Clock, backed by the Go runtime's
// monotonic reading (carried inside time.Time) and wall clock.
type System struct {
	boot time.Time
}

// NewSystem creates a System clock. The monotonic origin is the
// instant NewSystem is called; MonotonicMicros is therefore relative
// to process start, which is all the scheduler requires (it only ever
// compares two readings of the same clock).
func NewSystem() *System {
	return &System{boot: time.Now()}
}

func (s *System) MonotonicMicros() int64 {
	return time.Since(s.boot).Microseconds()
}

func (s *System) WallMicros() int64 {
	return time.Now().UnixMicro()
}
