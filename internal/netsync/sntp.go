// Package netsync is a minimal SNTP client (RFC 4330 client mode
// only) that exists solely to feed internal/discipline.Discipline a
// wall-clock sample - spec.md places SNTP wiring out of scope as
// ordinary glue, so this is kept deliberately small, grounded on the
// retrieval pack's dranidis/sntp reference client rather than pulling
// in a full NTP daemon implementation.
package netsync

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const ntpEpochOffset = 2208988800

type ntpPacket struct {
	Settings       uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
	RefTimeSec     uint32
	RefTimeFrac    uint32
	OrigTimeSec    uint32
	OrigTimeFrac   uint32
	RxTimeSec      uint32
	RxTimeFrac     uint32
	TxTimeSec      uint32
	TxTimeFrac     uint32
}

// Notifier receives each successful sync; Discipline implements it.
type Notifier interface {
	SyncReported()
}

// WallSetter lets the caller actually apply the sampled wall time;
// production wiring typically leaves this to the OS's own SNTP
// client and only uses Client to know *when* a sync happened, but the
// hook is here so a bench setup can run end to end without one.
type WallSetter interface {
	SetWall(t time.Time)
}

// maxConsecutiveFailures is how many fully-failed polls (every server
// unreachable) in a row it takes before Client suspects the link
// itself, not just the servers, and asks its Dialer to reconnect.
const maxConsecutiveFailures = 3

// Client polls a list of SNTP servers on an interval and reports
// successes to a Notifier.
type Client struct {
	Servers  []string
	Interval time.Duration
	Notifier Notifier
	Wall     WallSetter
	Logger   *slog.Logger
	Timeout  time.Duration

	// Dialer is asked to Reconnect after maxConsecutiveFailures polls
	// in a row find every server unreachable. Defaults to NoopDialer.
	Dialer Dialer

	stop chan struct{}

	consecutiveFailures int
}

// NewClient creates a Client with sensible defaults for Timeout (5s)
// and Dialer (NoopDialer).
func NewClient(servers []string, interval time.Duration, notifier Notifier, wall WallSetter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Servers:  servers,
		Interval: interval,
		Notifier: notifier,
		Wall:     wall,
		Logger:   logger,
		Timeout:  5 * time.Second,
		Dialer:   NoopDialer{},
		stop:     make(chan struct{}),
	}
}

// Run polls once immediately, then on Interval, until Stop is called.
// Intended to be run in its own goroutine.
func (c *Client) Run() {
	c.pollOnce()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

// Stop requests Run return; it does not block for completion since a
// poll in flight has its own timeout.
func (c *Client) Stop() {
	close(c.stop)
}

func (c *Client) pollOnce() {
	for _, server := range c.Servers {
		t, err := c.query(server)
		if err != nil {
			c.Logger.Warn("sntp query failed", "server", server, "error", err)
			continue
		}

		c.consecutiveFailures = 0
		if c.Wall != nil {
			c.Wall.SetWall(t)
		}
		if c.Notifier != nil {
			c.Notifier.SyncReported()
		}
		c.Logger.Info("sntp sync", "server", server, "time", t)
		return
	}

	c.Logger.Warn("sntp: no server reachable")
	c.consecutiveFailures++
	if c.consecutiveFailures >= maxConsecutiveFailures && c.Dialer != nil {
		c.consecutiveFailures = 0
		if err := c.Dialer.Reconnect(); err != nil {
			c.Logger.Error("sntp: reconnect failed", "error", err)
		}
	}
}

// query performs a single client-mode SNTP exchange against addr and
// returns the server's transmit time as a UTC time.Time.
func (c *Client) query(addr string) (time.Time, error) {
	conn, err := net.DialTimeout("udp", addr, c.Timeout)
	if err != nil {
		return time.Time{}, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		return time.Time{}, err
	}

	req := &ntpPacket{Settings: 0x1B} // LI=0, VN=3, Mode=3 (client)
	if err := binary.Write(conn, binary.BigEndian, req); err != nil {
		return time.Time{}, fmt.Errorf("write request: %w", err)
	}

	rsp := &ntpPacket{}
	if err := binary.Read(conn, binary.BigEndian, rsp); err != nil {
		return time.Time{}, fmt.Errorf("read response: %w", err)
	}

	secs := float64(rsp.TxTimeSec) - ntpEpochOffset
	nanos := (int64(rsp.TxTimeFrac) * 1e9) >> 32

	return time.Unix(int64(secs), nanos).UTC(), nil
}
