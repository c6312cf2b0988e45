// Package frame packs one MSF minute into its 60-slot A/B bit vectors
// and the ordered queue of carrier edges a transmitter must produce to
// emit it, keyed to monotonic uptime microseconds.
package frame

import (
	"fmt"
	"time"

	"github.com/nomis/tempus-redux/internal/calendar"
)

// Signal is a single carrier edge: Carrier is the logical on/off
// state the output line must hold from TS (monotonic uptime
// microseconds) onward, until the next Signal in the queue.
//
// TS is unsigned: by the time a Frame is handed to the scheduler,
// every edge that would have fallen in the past has already been
// dropped (see Frame.DropBefore), rather than carried around as a
// negative timestamp to be skipped later.
type Signal struct {
	TS      uint64
	Carrier bool
}

// Frame is one minute's worth of MSF data: the A/B bit vectors for
// diagnostics plus the queue of edges that realises them.
type Frame struct {
	Calendar calendar.Calendar

	a [60]bool
	b [60]bool

	edges []Signal
}

// Empty reports whether the edge queue has been fully drained.
func (f *Frame) Empty() bool {
	return len(f.edges) == 0
}

// Peek returns the next undrained edge without removing it.
func (f *Frame) Peek() Signal {
	return f.edges[0]
}

// Pop removes and returns the next edge.
func (f *Frame) Pop() Signal {
	s := f.edges[0]
	f.edges = f.edges[1:]
	return s
}

// DropBefore discards every queued edge whose TS precedes now,
// modelling a scheduler that starts mid-minute (spec's "late start of
// a minute" case). It replaces the source's signed-timestamp
// skip-if-negative trick: by construction, once this returns, every
// remaining edge lies in the future.
func (f *Frame) DropBefore(now uint64) {
	i := 0
	for i < len(f.edges) && f.edges[i].TS < now {
		i++
	}
	f.edges = f.edges[i:]
}

// New builds the frame labelled at UTC second utcSecond (must be a
// multiple of 60) for transmission, given offsetUs, the microsecond
// delta between the wall clock and monotonic uptime at schedule time.
func New(utcSecond int64, offsetUs int64) *Frame {
	cal := calendar.New(time.Unix(utcSecond, 0).UTC())

	f := &Frame{Calendar: cal}
	f.encodeBits()
	f.scheduleEdges(utcSecond, offsetUs)
	return f
}

func (f *Frame) encodeBits() {
	setBCD(&f.a, 17, 24, uint(f.Calendar.Year%100))
	setBCD(&f.a, 25, 29, uint(f.Calendar.Month))
	setBCD(&f.a, 30, 35, uint(f.Calendar.Day))
	setBCD(&f.a, 36, 38, uint(f.Calendar.Weekday))
	setBCD(&f.a, 39, 44, uint(f.Calendar.Hour))
	setBCD(&f.a, 45, 51, uint(f.Calendar.Minute))

	// Minute identifier: 111110 over seconds 53-58, bit 59 stays 0 as
	// the marker gap.
	for i := 53; i <= 58; i++ {
		f.a[i] = true
	}

	f.b[53] = f.Calendar.ChangeSoon
	f.b[58] = f.Calendar.Summer

	f.b[54] = oddParity(&f.a, 17, 24)
	f.b[55] = oddParity(&f.a, 25, 35)
	f.b[56] = oddParity(&f.a, 36, 38)
	f.b[57] = oddParity(&f.a, 39, 51)
}

// setBCD fills the inclusive slot [begin..end] with the BCD encoding
// of value, least-significant bit at position end, four bits per
// decimal digit, walking from end toward begin.
func setBCD(data *[60]bool, begin, end int, value uint) {
	i := end
	for i >= begin {
		digit := value % 10
		value /= 10

		for j := 0; j < 4 && i >= begin; j++ {
			data[i] = digit&(1<<uint(j)) != 0
			i--
		}
	}
}

// oddParity returns true iff the inclusive count of set bits in
// [begin..end] is even, so that transmitting this bit alongside the
// data bits gives an odd total count.
func oddParity(data *[60]bool, begin, end int) bool {
	parity := true
	for i := begin; i <= end; i++ {
		parity = parity != data[i]
	}
	return parity
}

const (
	minuteMarkerGap = 500 * time.Millisecond
	slotOffGap      = 100 * time.Millisecond
	slotTail        = 700 * time.Millisecond
)

// scheduleEdges lays out the minute marker and the 59 data seconds as
// microsecond offsets in the monotonic uptime domain. The frame is
// transmitted during the minute before the one it labels.
func (f *Frame) scheduleEdges(utcSecond int64, offsetUs int64) {
	ts := utcSecond*int64(time.Second/time.Microsecond) - offsetUs
	ts -= int64(time.Minute / time.Microsecond)

	add := func(d time.Duration) {
		ts += int64(d / time.Microsecond)
	}
	emit := func(carrier bool) {
		if ts < 0 {
			// Already in the past relative to boot (uptime 0); it can
			// never be scheduled, so drop it here instead of carrying
			// a signed timestamp through the queue.
			return
		}
		f.edges = append(f.edges, Signal{TS: uint64(ts), Carrier: carrier})
	}

	emit(false)
	add(minuteMarkerGap)
	emit(true)
	add(minuteMarkerGap)

	for i := 1; i <= 59; i++ {
		a := f.a[i]
		b := f.b[i]

		emit(false)
		add(slotOffGap)

		if !a {
			emit(true)
		}
		add(slotOffGap)

		if b != a {
			emit(!b)
		}
		add(slotOffGap)

		if b {
			emit(true)
		}
		add(slotTail)
	}
}

// DiagnosticLine renders the one-line diagnostic text for a built
// frame: "<calendar> (offset <us>us)".
func (f *Frame) DiagnosticLine(offsetUs int64) string {
	return fmt.Sprintf("%s (offset %dus)", f.Calendar.String(), offsetUs)
}
