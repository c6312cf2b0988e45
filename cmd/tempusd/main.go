// tempusd drives a GPIO line with the UK "Time from NPL" (MSF, 60kHz)
// time signal, deriving the civil calendar from SNTP and disciplining
// the system clock to keep the waveform receiver-legible across drift
// and slews.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nomis/tempus-redux/internal/clocksrc"
	"github.com/nomis/tempus-redux/internal/config"
	"github.com/nomis/tempus-redux/internal/diagnostics"
	"github.com/nomis/tempus-redux/internal/discipline"
	"github.com/nomis/tempus-redux/internal/gpio"
	"github.com/nomis/tempus-redux/internal/netsync"
	"github.com/nomis/tempus-redux/internal/scheduler"
)

func main() {
	var configFileName string
	flag.StringVar(&configFileName, "c", "", "JSON config file")
	flag.StringVar(&configFileName, "config", "", "JSON config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if configFileName == "" {
		logger.Error("missing config file: -c or --config")
		os.Exit(1)
	}

	cfg, err := config.Load(configFileName)
	if err != nil {
		logger.Error("cannot load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	clock := clocksrc.NewSystem()

	adjuster := clocksrc.NewSystemAdjuster()
	d := discipline.New(adjuster, clock.MonotonicMicros)

	line, err := openLine(cfg, logger)
	if err != nil {
		return err
	}

	diagLog := diagnostics.NewLog(cfg.DiagnosticLogDir, cfg.DiagnosticLogText)

	sched := scheduler.New(clock, d, line, diagLog.Write, logger)

	wallSetter := wallClockSetter{}
	sntp := netsync.NewClient(cfg.SNTPServers, time.Duration(cfg.SNTPPollInterval), d, wallSetter, logger)

	heartbeat := diagnostics.NewHeartbeat(func() diagnostics.Status {
		return diagnostics.Status{
			SyncFresh:     d.SyncFresh(),
			SlewBudget:    d.SlewBudget(),
			SlewConsumed:  d.SlewConsumed(),
			LastEdgeAgeUs: clock.MonotonicMicros() - sched.LastEdgeMicros(),
		}
	}, logger)
	if err := heartbeat.Start(time.Duration(cfg.StatusInterval)); err != nil {
		return err
	}
	defer heartbeat.Stop()

	go sntp.Run()
	defer sntp.Stop()

	go sched.Run()
	defer sched.Stop()

	waitForSignal(logger)
	return nil
}

func openLine(cfg *config.Config, logger *slog.Logger) (gpio.Line, error) {
	if cfg.GPIOPin == "" {
		logger.Warn("no gpio_pin configured, logging carrier transitions only")
		return gpio.Invert(gpio.Logging{Logger: logger}, cfg.ActiveLow), nil
	}

	pin, err := gpio.OpenPin(cfg.GPIOPin)
	if err != nil {
		return nil, err
	}
	return gpio.Invert(pin, cfg.ActiveLow), nil
}

func waitForSignal(logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig)
}

// wallClockSetter is a no-op netsync.WallSetter: in production the
// daemon relies on the OS's own SNTP client (or NTP daemon) to have
// already set the wall clock, and only uses this SNTP client to learn
// *when* a sync last happened. A bench harness without any such
// daemon can substitute a real setter.
type wallClockSetter struct{}

func (wallClockSetter) SetWall(time.Time) {}
