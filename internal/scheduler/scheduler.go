// Package scheduler implements the transmit event loop: driven by a
// one-shot timer, it builds one MSF frame per minute and drains its
// edge queue into timed GPIO toggles, recovering cleanly from lost
// time sync and tolerating wall-clock steps.
//
// The source's one-shot hardware timer + C callback is replaced with
// a single dedicated goroutine blocking on a *time.Timer - channels
// instead of a void* context, same single-threaded-cooperative
// structure (see spec.md §5 and SPEC_FULL.md §4.4).
package scheduler

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nomis/tempus-redux/internal/clocksrc"
	"github.com/nomis/tempus-redux/internal/discipline"
	"github.com/nomis/tempus-redux/internal/frame"
	"github.com/nomis/tempus-redux/internal/gpio"
)

// retryInterval is how soon the loop re-polls while parked, waiting
// for sync or recovering from an arithmetic error.
const retryInterval = time.Second

// bootstrapDelay is the delay before the very first event(), giving
// an external time sync a chance to land.
const bootstrapDelay = time.Second

// DiagnosticFunc receives the one-line diagnostic text for each built
// frame (spec.md §6); a nil func means diagnostics are disabled.
type DiagnosticFunc func(line string)

// Scheduler is the TransmitScheduler of spec.md §4.4. Exactly one
// goroutine (Run's) ever touches current/lastSignalS; other
// goroutines observe LastEdgeMicros and SyncFresh via the atomics
// already owned by Discipline and the atomic published below.
type Scheduler struct {
	clock      clocksrc.Clock
	discipline *discipline.Discipline
	line       gpio.Line
	diagnostic DiagnosticFunc
	logger     *slog.Logger

	timer *time.Timer

	current      *frame.Frame
	lastSignalS  int64
	lastEdgeUs   atomic.Int64
	stop         chan struct{}
	stopped      chan struct{}
}

// New creates a Scheduler. logger defaults to slog.Default() if nil.
func New(clock clocksrc.Clock, d *discipline.Discipline, line gpio.Line, diagnostic DiagnosticFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:      clock,
		discipline: d,
		line:       line,
		diagnostic: diagnostic,
		logger:     logger,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// LastEdgeMicros returns the monotonic uptime of the most recently
// emitted edge, for the liveness indicator (spec.md's "unrelated UI
// thread" reader).
func (s *Scheduler) LastEdgeMicros() int64 {
	return s.lastEdgeUs.Load()
}

// Run starts the event loop and blocks until Stop is called. It
// should be run in its own goroutine.
func (s *Scheduler) Run() {
	defer close(s.stopped)

	s.timer = time.NewTimer(bootstrapDelay)
	for {
		select {
		case <-s.stop:
			s.timer.Stop()
			return
		case <-s.timer.C:
			s.event()
		}
	}
}

// Stop requests the loop exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.stopped
}

// arm schedules the next event() call after d, clamping negative
// durations to zero (fire immediately) rather than passing them to
// time.Timer, whose behaviour for d<=0 is already "fire immediately"
// but which cannot represent overflowed negative uptime arithmetic
// cleanly.
func (s *Scheduler) arm(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)
}

// setLine sets the physical line and logs any failure; GPIO faults
// are the "underlying OS failures" spec.md §7 treats as fatal to the
// waveform's integrity but not to the process - the loop keeps
// retrying rather than crashing the daemon.
func (s *Scheduler) setLine(active bool) {
	if err := s.line.SetActive(active); err != nil {
		s.logger.Error("gpio set level failed", "error", err)
	}
}

// event runs one iteration of the per-invocation logic in spec.md
// §4.4, looping until it either arms the timer and returns or
// (unreachable in practice) runs out of cases to handle.
func (s *Scheduler) event() {
	for {
		uptimeUs := s.clock.MonotonicMicros()

		if s.current == nil || s.current.Empty() {
			if s.buildNextFrame(uptimeUs) {
				continue
			}
			return
		}

		edge := s.current.Peek()
		if uptimeUs < int64(edge.TS) {
			s.arm(time.Duration(int64(edge.TS)-uptimeUs) * time.Microsecond)
			return
		}

		s.setLine(edge.Carrier)
		s.lastEdgeUs.Store(uptimeUs)
		s.current.Pop()
	}
}

// buildNextFrame attempts to construct and queue the next minute's
// frame. It returns true if the caller should continue the event
// loop immediately (a frame is now available to drain), false if it
// has armed a retry/wait timer and the caller should return.
func (s *Scheduler) buildNextFrame(uptimeUs int64) bool {
	if !s.discipline.SyncFresh() {
		s.logger.Info("waiting for time sync")
		s.setLine(true)
		s.arm(retryInterval)
		return false
	}

	wallUs := s.clock.WallMicros()
	if wallUs < uptimeUs {
		s.logger.Error("wall clock behind uptime", "wall_us", wallUs, "uptime_us", uptimeUs)
		s.setLine(true)
		s.arm(retryInterval)
		return false
	}

	offsetUs := wallUs - uptimeUs
	nextS := nextFrameSecond(wallUs)

	if nextS == s.lastSignalS {
		// Wall clock stepped back slightly; don't rebuild the same
		// frame. Wait until the real next-minute boundary approaches.
		remaining := nextMinuteRemaining(wallUs, offsetUs, uptimeUs)
		if remaining < 0 {
			s.logger.Error("invalid remaining time before next minute")
			s.setLine(true)
			s.arm(retryInterval)
			return false
		}
		s.setLine(true)
		s.arm(time.Duration(remaining) * time.Microsecond)
		return false
	}

	f := frame.New(nextS, offsetUs)
	s.lastSignalS = nextS

	if s.diagnostic != nil {
		s.diagnostic(f.DiagnosticLine(offsetUs))
	}

	f.DropBefore(uint64(uptimeUs))
	if f.Empty() {
		s.logger.Warn("nothing left to transmit")
		s.arm(retryInterval)
		return false
	}

	s.current = f
	s.discipline.GrantSlew()
	return true
}

// nextFrameSecond computes the UTC second, a multiple of 60, of the
// next frame to build: strictly the next minute boundary after
// wallUs, plus one extra minute of lookahead because the frame for
// minute M is transmitted starting at M-60s.
//
// This resolves the open question in spec.md §9 about the source's
// "now_s++; now_s/=60; now_s++; now_s*=60" arithmetic. When the
// current second is already a minute boundary that arithmetic picks
// the frame whose transmission starts in that same second (now_s=60
// gives 120); this function picks the one after it (180).
// We explicitly choose "at least one full minute of lookahead,
// rounded up to the next minute boundary" and compute it without the
// double-increment, documented here rather than silently copied.
func nextFrameSecond(wallUs int64) int64 {
	nowS := wallUs / int64(time.Second/time.Microsecond)
	nextMinute := (nowS/60 + 1) * 60
	return nextMinute + 60
}

// nextMinuteRemaining computes the microseconds until 700ms before
// the next minute boundary, in the uptime domain, used to re-arm
// without rebuilding a suppressed duplicate frame.
func nextMinuteRemaining(wallUs, offsetUs, uptimeUs int64) int64 {
	usPerMinute := int64(time.Minute / time.Microsecond)
	nextMinuteUs := (wallUs/usPerMinute + 1) * usPerMinute
	nextMinuteUs -= int64(700 * time.Millisecond / time.Microsecond)
	if nextMinuteUs < wallUs {
		return -1
	}
	return nextMinuteUs - offsetUs - uptimeUs
}
