// Package gpio contracts the single digital output line the scheduler
// drives. Active-low inversion lives here so the scheduler only ever
// deals in the logical carrier-on/off sense spec.md describes.
package gpio

import "log/slog"

// Line is the physical output contract: two levels, active and
// inactive, carrier=on maps to active.
type Line interface {
	SetActive(active bool) error
}

// inverting wraps a Line so Carrier=on always maps to the physical
// "active" level regardless of polarity, matching spec.md §4.4's
// "active-low inversion" note.
type inverting struct {
	line      Line
	activeLow bool
}

// Invert wraps line so that SetActive's argument is always in the
// logical sense (true = carrier on) even when the hardware is wired
// active-low.
func Invert(line Line, activeLow bool) Line {
	return &inverting{line: line, activeLow: activeLow}
}

func (i *inverting) SetActive(active bool) error {
	if i.activeLow {
		active = !active
	}
	return i.line.SetActive(active)
}

// Logging is a Line that only logs the requested level, for running
// the daemon on hosts with no GPIO hardware attached.
type Logging struct {
	Logger *slog.Logger
}

func (l Logging) SetActive(active bool) error {
	l.Logger.Debug("gpio line level", "active", active)
	return nil
}
