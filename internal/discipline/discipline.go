// Package discipline implements a bounded, rate-limited wall-clock
// adjustment primitive: the daemon's own override of the system's
// adjtime-equivalent, used so the emitted MSF waveform never tears
// beyond receiver tolerance when the wall clock is slewed.
package discipline

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"time"
)

// Delta mirrors the seconds/microseconds pair POSIX adjtime passes in
// and returns.
type Delta struct {
	Seconds      int64
	Microseconds int64
}

// maxStepMicros bounds an accepted single-call adjustment; anything
// outside this range looks like a coarse step, not a slew, and is
// rejected.
const maxStepMicros = 750_000

// maxSlewMicros caps how much of a requested delta is actually
// applied per granted permission: 25ms/minute, so 750ms of
// accumulated error takes 30 minutes to repair.
const maxSlewMicros = 25_000

// freshWindow is how long a sync notification is considered current.
const freshWindow = 3 * time.Hour

// Adjuster is the real OS-level wall-clock stepping primitive that
// Discipline applies a (clamped, rate-limited) delta through. On
// Linux this is backed by golang.org/x/sys/unix.Adjtimex.
type Adjuster interface {
	// StepMicros adds deltaUs microseconds to the wall clock.
	StepMicros(deltaUs int64) error
}

// MonotonicNow returns the current monotonic uptime in microseconds.
type MonotonicNow func() int64

// Discipline is the process-wide clock discipline state described in
// spec.md §4.3. It is safe for concurrent use: the scheduler grants
// slew permission from its own goroutine, the OS adjust-hook caller
// consumes it from another, and an unrelated reader polls freshness -
// all via atomics, with no ordering dependency between them.
type Discipline struct {
	adjuster Adjuster
	monotonic MonotonicNow

	timeSyncUs    atomic.Int64
	slewBudget    atomic.Uint64
	slewConsumed  atomic.Uint64
	firstStepDone atomic.Bool
}

// New creates a Discipline that applies accepted slews through
// adjuster and measures freshness against monotonic.
func New(adjuster Adjuster, monotonic MonotonicNow) *Discipline {
	return &Discipline{adjuster: adjuster, monotonic: monotonic}
}

// ErrInvalid is returned for any argument that looks like a coarse
// step rather than a bounded slew, and for the mandatory first call -
// this prevents a client's SNTP implementation from stepping the
// clock at boot or on large drift. It wraps syscall.EINVAL, matching
// the errno POSIX adjtime(2) itself returns for the same conditions.
var ErrInvalid = fmt.Errorf("discipline: invalid adjustment: %w", syscall.EINVAL)

// Adjust is the adjtime-equivalent entry point. delta may be nil to
// query only (treated as a zero delta; the first-call and bounds
// rules still apply).
func (d *Discipline) Adjust(delta *Delta) (outdelta Delta, err error) {
	var seconds, micros int64
	if delta != nil {
		seconds, micros = delta.Seconds, delta.Microseconds
	}

	firstCall := !d.firstStepDone.Swap(true)

	if seconds != 0 || micros < -maxStepMicros || micros >= maxStepMicros || firstCall {
		return Delta{}, ErrInvalid
	}

	if !d.consumeSlew() {
		// No permission available: no-op success, outdelta still
		// zero - the discipline owns pacing, the caller is told
		// nothing remains.
		return Delta{}, nil
	}

	if micros != 0 {
		applied := clamp(micros, -maxSlewMicros, maxSlewMicros)
		if err := d.adjuster.StepMicros(applied); err != nil {
			return Delta{}, err
		}
	}

	return Delta{}, nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// consumeSlew claims one previously granted permission, if any is
// outstanding. Only the inequality budget != consumed matters, so
// plain atomic counters suffice.
func (d *Discipline) consumeSlew() bool {
	for {
		budget := d.slewBudget.Load()
		consumed := d.slewConsumed.Load()
		if budget == consumed {
			return false
		}
		if d.slewConsumed.CompareAndSwap(consumed, consumed+1) {
			return true
		}
	}
}

// GrantSlew is called by the scheduler exactly once per successfully
// scheduled frame, permitting the next accepted Adjust call to apply
// up to 25ms of correction.
func (d *Discipline) GrantSlew() {
	d.slewBudget.Add(1)
}

// SyncReported records that a time sync has just completed.
func (d *Discipline) SyncReported() {
	d.timeSyncUs.Store(d.monotonic())
}

// SyncFresh reports whether a sync has completed within the last
// three hours.
func (d *Discipline) SyncFresh() bool {
	last := d.timeSyncUs.Load()
	return last > 0 && d.monotonic()-last < int64(freshWindow/time.Microsecond)
}

// SlewBudget returns the number of slew permissions granted so far
// (for diagnostics; see spec.md §8's slew ceiling property).
func (d *Discipline) SlewBudget() uint64 {
	return d.slewBudget.Load()
}

// SlewConsumed returns the number of slew permissions used so far.
func (d *Discipline) SlewConsumed() uint64 {
	return d.slewConsumed.Load()
}
