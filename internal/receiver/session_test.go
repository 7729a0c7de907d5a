// ABOUTME: Tests for the receiver session
// ABOUTME: Covers playout delivery, malformed datagrams, and bind failures
package receiver

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmic-audio/dmic-go/internal/audio"
	"github.com/dmic-audio/dmic-go/internal/playback"
	"github.com/dmic-audio/dmic-go/internal/stream"
)

func quietLogf(format string, args ...any) {}

// capturePlayer records every sample written to it.
type capturePlayer struct {
	mu      sync.Mutex
	written []int16
	writes  int
	failAll bool
}

func (p *capturePlayer) Write(samples []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errors.New("device fault")
	}
	p.written = append(p.written, samples...)
	p.writes++
	return nil
}

func (p *capturePlayer) Close() error { return nil }

func (p *capturePlayer) snapshot() []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int16, len(p.written))
	copy(out, p.written)
	return out
}

type captureProvider struct {
	player  *capturePlayer
	openErr error
}

func (p *captureProvider) OpenPlayback(format audio.Format) (playback.Player, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.player, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to probe port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func dialSession(t *testing.T, port int) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestStartRejectsInvalidPort(t *testing.T) {
	s := New(Config{Provider: &captureProvider{player: &capturePlayer{}}, Logf: quietLogf})

	for _, port := range []int{0, -1, 70000} {
		if err := s.Start(port); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("Start(%d): expected ErrInvalidPort, got %v", port, err)
		}
	}
}

func TestReceiveAndPlayout(t *testing.T) {
	player := &capturePlayer{}
	s := New(Config{Provider: &captureProvider{player: player}, Logf: quietLogf})
	port := freePort(t)

	if err := s.Start(port); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	if s.State() != stream.StateStreaming {
		t.Fatalf("state %v, want streaming", s.State())
	}

	conn := dialSession(t, port)
	defer conn.Close()

	want := []int16{1000, -2000, 3000, -4000}
	if _, err := conn.Write(audio.EncodeLE(want)); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return len(player.snapshot()) == len(want) }) {
		t.Fatalf("playout never received %d samples", len(want))
	}

	got := player.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: %d, want %d", i, got[i], want[i])
		}
	}
	if s.Level() <= 0 {
		t.Errorf("level %f after audio, want > 0", s.Level())
	}
}

func TestMalformedDatagramsDropped(t *testing.T) {
	player := &capturePlayer{}
	s := New(Config{Provider: &captureProvider{player: player}, Logf: quietLogf})
	port := freePort(t)

	if err := s.Start(port); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	conn := dialSession(t, port)
	defer conn.Close()

	// Zero-length and odd-length payloads must be dropped without
	// reaching the playback device.
	if _, err := conn.Write([]byte{}); err != nil {
		t.Fatalf("zero-length send failed: %v", err)
	}
	if _, err := conn.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("odd-length send failed: %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return s.Stats().Dropped >= 2 }) {
		t.Fatalf("dropped count %d, want >= 2", s.Stats().Dropped)
	}

	// A good datagram afterward still plays: the loop survived.
	good := []int16{42, -42}
	if _, err := conn.Write(audio.EncodeLE(good)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return len(player.snapshot()) == len(good) }) {
		t.Fatal("good datagram after malformed ones never played")
	}
	if player.writes != 1 {
		t.Errorf("playback writes %d, want 1", player.writes)
	}
}

func TestTransientWriteErrorsDoNotStopLoop(t *testing.T) {
	player := &capturePlayer{failAll: true}
	s := New(Config{Provider: &captureProvider{player: player}, Logf: quietLogf})
	port := freePort(t)

	if err := s.Start(port); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	conn := dialSession(t, port)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		if _, err := conn.Write(audio.EncodeLE([]int16{1, 2})); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	if !waitFor(t, 2*time.Second, func() bool { return s.Stats().WriteErrors >= 3 }) {
		t.Fatalf("write error count %d, want >= 3", s.Stats().WriteErrors)
	}
	if s.State() != stream.StateStreaming {
		t.Errorf("state %v, want streaming despite write errors", s.State())
	}
}

func TestBindFailureIsFatal(t *testing.T) {
	port := freePort(t)

	first := New(Config{Provider: &captureProvider{player: &capturePlayer{}}, Logf: quietLogf})
	if err := first.Start(port); err != nil {
		t.Fatalf("first bind failed: %v", err)
	}
	defer first.Stop()

	second := New(Config{Provider: &captureProvider{player: &capturePlayer{}}, Logf: quietLogf})
	if err := second.Start(port); err == nil {
		t.Fatal("expected second bind to fail")
	}
	if second.State() != stream.StateFailed {
		t.Errorf("state %v, want failed", second.State())
	}
}

// flakyConn errors a fixed number of reads, then reports closed.
type flakyConn struct {
	errsLeft int
}

func (c *flakyConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if c.errsLeft > 0 {
		c.errsLeft--
		return 0, nil, errors.New("socket fault")
	}
	return 0, nil, net.ErrClosed
}

func (c *flakyConn) Close() error { return nil }

func TestStartAgainAfterBindFailure(t *testing.T) {
	blocker, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	port := blocker.LocalAddr().(*net.UDPAddr).Port

	s := New(Config{Provider: &captureProvider{player: &capturePlayer{}}, Logf: quietLogf})
	if err := s.Start(port); err == nil {
		blocker.Close()
		t.Fatal("expected bind to fail")
	}
	if s.State() != stream.StateFailed {
		t.Fatalf("state %v after bind failure, want failed", s.State())
	}

	// Once the port frees up, the same session starts again.
	blocker.Close()
	if err := s.Start(port); err != nil {
		t.Fatalf("restart after bind failure: %v", err)
	}
	defer s.Stop()

	if s.State() != stream.StateStreaming {
		t.Errorf("state %v after restart, want streaming", s.State())
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v after successful restart, want nil", err)
	}
}

func TestReadErrorsArePaced(t *testing.T) {
	s := New(Config{Provider: &captureProvider{player: &capturePlayer{}}, Logf: quietLogf})
	done := make(chan struct{})

	start := time.Now()
	s.run(&flakyConn{errsLeft: 5}, &capturePlayer{}, done)
	elapsed := time.Since(start)

	if got := s.Stats().ReadErrors; got != 5 {
		t.Errorf("read error count %d, want 5", got)
	}
	if elapsed < 4*readErrDelay {
		t.Errorf("5 read errors took %v, want at least %v of pacing", elapsed, 4*readErrDelay)
	}

	select {
	case <-done:
	default:
		t.Error("worker did not signal done")
	}
}

func TestPlaybackOpenFailureIsFatal(t *testing.T) {
	s := New(Config{
		Provider: &captureProvider{openErr: errors.New("no output device")},
		Logf:     quietLogf,
	})

	if err := s.Start(freePort(t)); err == nil {
		t.Fatal("expected start to fail")
	}
	if s.State() != stream.StateFailed {
		t.Errorf("state %v, want failed", s.State())
	}
}

func TestStopReturnsToIdle(t *testing.T) {
	s := New(Config{Provider: &captureProvider{player: &capturePlayer{}}, Logf: quietLogf})
	port := freePort(t)

	if err := s.Start(port); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	stopStart := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if elapsed := time.Since(stopStart); elapsed > 3*time.Second {
		t.Errorf("stop took %v, want <= 3s", elapsed)
	}
	if s.State() != stream.StateIdle {
		t.Errorf("state %v, want idle", s.State())
	}
	if s.Level() != 0 {
		t.Errorf("level %f after stop, want 0", s.Level())
	}
}

func TestStopRejectsWhenIdle(t *testing.T) {
	s := New(Config{Provider: &captureProvider{player: &capturePlayer{}}, Logf: quietLogf})
	if err := s.Stop(); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
}
