package netsync

import (
	"encoding/binary"
	"log/slog"
	"net"
	"testing"
	"time"
)

// fakeNotifier records SyncReported calls.
type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) SyncReported() { f.calls++ }

// fakeWallSetter records the last time it was told to set.
type fakeWallSetter struct {
	last time.Time
}

func (f *fakeWallSetter) SetWall(t time.Time) { f.last = t }

// startFakeServer runs a single-shot SNTP server on loopback that
// replies to exactly one request with a response carrying txSec
// seconds since the NTP epoch, then exits.
func startFakeServer(t *testing.T, txSec uint32) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		defer conn.Close()

		buf := make([]byte, 128)
		_, addr, err := conn.ReadFrom(buf)
		if err != nil {
			return
		}

		rsp := ntpPacket{
			Settings:   0x1C, // LI=0, VN=3, Mode=4 (server)
			TxTimeSec:  txSec,
			TxTimeFrac: 0,
		}

		pw, err := newPacketWriter(rsp)
		if err != nil {
			return
		}
		conn.WriteTo(pw, addr)
	}()

	return conn.LocalAddr().String()
}

// newPacketWriter serialises an ntpPacket the same way query does,
// without depending on any unexported helper from sntp.go beyond the
// struct layout itself.
func newPacketWriter(p ntpPacket) ([]byte, error) {
	buf := make([]byte, 0, 48)
	w := &byteBuf{buf: buf}
	if err := binary.Write(w, binary.BigEndian, p); err != nil {
		return nil, err
	}
	return w.buf, nil
}

type byteBuf struct {
	buf []byte
}

func (b *byteBuf) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// TestQueryParsesServerTime checks query() correctly converts a
// server's NTP-epoch transmit timestamp into a UTC time.Time.
func TestQueryParsesServerTime(t *testing.T) {
	want := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	txSec := uint32(want.Unix() + ntpEpochOffset)

	addr := startFakeServer(t, txSec)

	c := NewClient([]string{addr}, time.Minute, nil, nil, slog.Default())
	got, err := c.query(addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !got.Equal(want) {
		t.Errorf("query() = %v, want %v", got, want)
	}
}

// TestPollOnceReportsSuccessToNotifierAndWall checks a successful poll
// notifies both the Notifier and the WallSetter exactly once, and
// stops trying further servers in the list.
func TestPollOnceReportsSuccessToNotifierAndWall(t *testing.T) {
	want := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	txSec := uint32(want.Unix() + ntpEpochOffset)
	addr := startFakeServer(t, txSec)

	notifier := &fakeNotifier{}
	wall := &fakeWallSetter{}
	c := NewClient([]string{addr}, time.Minute, notifier, wall, slog.Default())

	c.pollOnce()

	if notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.calls)
	}
	if !wall.last.Equal(want) {
		t.Errorf("wall set to %v, want %v", wall.last, want)
	}
}

// TestPollOnceSkipsUnreachableServers checks that a server nothing is
// listening on doesn't stop the poll from reporting failure cleanly
// (no panic, no notifier call) within its timeout.
func TestPollOnceSkipsUnreachableServers(t *testing.T) {
	// Port 1 on loopback: nothing listens there, but the UDP dial
	// itself still succeeds (connectionless); the read then fails,
	// usually at once with "connection refused", or else times out -
	// bound the timeout tightly so the test doesn't hang.
	notifier := &fakeNotifier{}
	c := NewClient([]string{"127.0.0.1:1"}, time.Minute, notifier, nil, slog.Default())
	c.Timeout = 50 * time.Millisecond

	c.pollOnce()

	if notifier.calls != 0 {
		t.Errorf("notifier called on an unreachable server: %d calls", notifier.calls)
	}
}

// fakeDialer records Reconnect calls.
type fakeDialer struct {
	calls int
}

func (f *fakeDialer) Reconnect() error {
	f.calls++
	return nil
}

// TestPollOnceReconnectsAfterSustainedFailure checks the Dialer is
// asked to reconnect only once maxConsecutiveFailures fully-failed
// polls have happened in a row, and that the count is reset to zero
// after the reconnect.
func TestPollOnceReconnectsAfterSustainedFailure(t *testing.T) {
	dialer := &fakeDialer{}
	c := NewClient([]string{"127.0.0.1:1"}, time.Minute, nil, nil, slog.Default())
	c.Timeout = 50 * time.Millisecond
	c.Dialer = dialer

	for i := 0; i < maxConsecutiveFailures-1; i++ {
		c.pollOnce()
		if dialer.calls != 0 {
			t.Fatalf("reconnect called early, after %d failures", i+1)
		}
	}

	c.pollOnce()
	if dialer.calls != 1 {
		t.Fatalf("reconnect calls = %d, want 1 after %d consecutive failures", dialer.calls, maxConsecutiveFailures)
	}
	if c.consecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want reset to 0 after reconnect", c.consecutiveFailures)
	}
}
