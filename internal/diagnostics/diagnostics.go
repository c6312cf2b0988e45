// Package diagnostics provides the two log sinks spec.md implies but
// doesn't specify: the rotating per-frame diagnostic text log (§6)
// and a periodic status heartbeat, both grounded on the teacher's own
// logging stack (rtcmlogger/log, rtcm/utils.GetDailyLogger).
package diagnostics

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/goblimey/go-tools/dailylogger"
	"github.com/goblimey/go-tools/switchWriter"
	"github.com/robfig/cron"
)

// Log is the rotating diagnostic text log: one line per built MSF
// frame, written through a switchWriter so it can be turned on and
// off at runtime (grounded on rtcmlogger/log/writer.go's use of
// switchWriter to gate logging around midnight) without restarting
// the daemon, and a dailylogger so each day gets its own file.
type Log struct {
	switcher *switchWriter.Writer
	daily    io.Writer
	logger   *log.Logger
}

// NewLog creates a diagnostic Log writing into dir, with logging
// initially enabled iff enabled is true.
func NewLog(dir string, enabled bool) *Log {
	sw := switchWriter.New()
	daily := dailylogger.New(dir, "tempus-redux.", ".log")

	l := &Log{
		switcher: sw,
		daily:    daily,
		logger:   log.New(sw, "", log.LstdFlags|log.Lmicroseconds),
	}
	l.SetEnabled(enabled)
	return l
}

// SetEnabled turns diagnostic text logging on or off at runtime by
// switching the underlying writer between the daily log file and nil
// (discard).
func (l *Log) SetEnabled(enabled bool) {
	if enabled {
		l.switcher.SwitchTo(l.daily)
	} else {
		l.switcher.SwitchTo(nil)
	}
}

// Write implements the scheduler.DiagnosticFunc signature.
func (l *Log) Write(line string) {
	l.logger.Println(line)
}

// Heartbeat is the periodic status snapshot (spec.md §5's "unrelated
// UI thread" generalised into a logged heartbeat): sync freshness,
// slew budget/consumed and the age of the last emitted edge. It's
// scheduled with robfig/cron, the generalisation of the teacher's
// midnight cron job (rtcmlogger/log/writer.go) into a live health
// check instead of a once-a-day rollover.
type Heartbeat struct {
	cron   *cron.Cron
	logger *slog.Logger
	sample func() Status
}

// Status is one heartbeat sample.
type Status struct {
	SyncFresh      bool
	SlewBudget     uint64
	SlewConsumed   uint64
	LastEdgeAgeUs  int64
}

// NewHeartbeat creates a Heartbeat that calls sample and logs the
// result at Info level each time Start's interval elapses.
func NewHeartbeat(sample func() Status, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{
		cron:   cron.New(),
		logger: logger,
		sample: sample,
	}
}

// Start schedules the heartbeat and begins running it.
func (h *Heartbeat) Start(interval time.Duration) error {
	spec := fmt.Sprintf("@every %s", interval)
	if err := h.cron.AddFunc(spec, h.tick); err != nil {
		return fmt.Errorf("diagnostics: schedule heartbeat: %w", err)
	}
	h.cron.Start()
	return nil
}

// Stop halts the heartbeat schedule.
func (h *Heartbeat) Stop() {
	h.cron.Stop()
}

func (h *Heartbeat) tick() {
	s := h.sample()
	h.logger.Info("status heartbeat",
		"sync_fresh", s.SyncFresh,
		"slew_budget", s.SlewBudget,
		"slew_consumed", s.SlewConsumed,
		"last_edge_age_us", s.LastEdgeAgeUs,
	)
}
