// Package config reads the daemon's JSON configuration file, in the
// style of the teacher's jsonconfig package: plain struct with JSON
// tags, one loader function, no schema validation library.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Duration marshals as a Go duration string ("30s") rather than raw
// nanoseconds, the idiom used throughout the retrieval pack's config
// types.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the daemon's JSON configuration file.
type Config struct {
	// GPIOPin is the periph.io pin name driving the carrier, e.g. "GPIO4".
	GPIOPin string `json:"gpio_pin"`

	// ActiveLow inverts the logical carrier sense on the output line.
	ActiveLow bool `json:"active_low"`

	// DiagnosticLogDir is the directory for the rotating diagnostic
	// text log (one line per built frame). Defaults to "." if empty.
	DiagnosticLogDir string `json:"diagnostic_log_dir"`

	// DiagnosticLogText enables the diagnostic text log; it can be
	// toggled at runtime without restarting (see internal/diagnostics).
	DiagnosticLogText bool `json:"diagnostic_log_text"`

	// SNTPServers is a list of "host:port" SNTP servers to poll.
	SNTPServers []string `json:"sntp_servers"`

	// SNTPPollInterval is the time between SNTP polls.
	SNTPPollInterval Duration `json:"sntp_poll_interval"`

	// StatusInterval is the period of the status heartbeat log line.
	StatusInterval Duration `json:"status_interval"`
}

// defaults applied to zero-valued fields after loading.
const (
	defaultSNTPPollInterval = 10 * time.Minute
	defaultStatusInterval   = time.Minute
)

// Load reads and parses the JSON config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse: %w", err)
	}

	if cfg.DiagnosticLogDir == "" {
		cfg.DiagnosticLogDir = "."
	}
	if cfg.SNTPPollInterval == 0 {
		cfg.SNTPPollInterval = Duration(defaultSNTPPollInterval)
	}
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = Duration(defaultStatusInterval)
	}

	return &cfg, nil
}
