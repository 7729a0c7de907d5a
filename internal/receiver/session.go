// ABOUTME: Receiver streaming session
// ABOUTME: Binds the audio port, depacketizes datagrams, and feeds playout
package receiver

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmic-audio/dmic-go/internal/audio"
	"github.com/dmic-audio/dmic-go/internal/capture"
	"github.com/dmic-audio/dmic-go/internal/meter"
	"github.com/dmic-audio/dmic-go/internal/playback"
	"github.com/dmic-audio/dmic-go/internal/stream"
	"github.com/google/uuid"
)

const (
	// DefaultPort is the well-known inbound audio port.
	DefaultPort = 50005

	// DefaultSampleRate is the playout rate. The wire format carries no
	// header, so both ends agree on the rate out of band (config).
	DefaultSampleRate = 44100

	// DefaultStopTimeout bounds how long Stop waits for the worker.
	DefaultStopTimeout = 3 * time.Second

	// readErrDelay paces retries after a transient socket read error so
	// a persistently broken socket cannot spin the loop.
	readErrDelay = 10 * time.Millisecond
)

// Errors surfaced by the receiver control surface.
var (
	// ErrInvalidPort reports an out-of-range port.
	ErrInvalidPort = errors.New("invalid port")

	// ErrNotIdle reports Start on a session that already ran or is running.
	ErrNotIdle = errors.New("session is not idle")

	// ErrNotActive reports Stop on an idle session.
	ErrNotActive = errors.New("session is not active")
)

// Config configures a receiver session.
type Config struct {
	Provider    playback.Provider
	SampleRate  int
	Channels    int
	MaxDatagram int
	StopTimeout time.Duration
	Meter       *meter.Meter
	Logf        capture.Logf
}

// Stats is a snapshot of receive counters.
type Stats struct {
	Packets     int64
	Bytes       int64
	Dropped     int64
	ReadErrors  int64
	WriteErrors int64
}

// Session turns the inbound datagram stream back into continuous audio.
// Out-of-order or duplicate arrival is not corrected; the playback
// device's own buffering absorbs jitter. One worker goroutine owns the
// socket and the playback handle.
type Session struct {
	cfg  Config
	id   string
	logf capture.Logf

	mu   sync.Mutex
	conn *net.UDPConn
	done chan struct{}

	state     atomic.Int32
	levelBits atomic.Uint64
	stopping  atomic.Bool
	failure   atomic.Value // failure

	port int

	packets     atomic.Int64
	bytes       atomic.Int64
	dropped     atomic.Int64
	readErrors  atomic.Int64
	writeErrors atomic.Int64
}

// packetConn is the slice of *net.UDPConn the receive loop uses,
// narrowed so tests can inject failing sockets.
type packetConn interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	Close() error
}

// New creates an idle receiver session.
func New(cfg Config) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = audio.MaxDatagram
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Meter == nil {
		cfg.Meter = meter.New()
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}

	return &Session{
		cfg:  cfg,
		id:   uuid.New().String(),
		logf: logf,
	}
}

// Start binds the inbound socket, opens the playback device, and
// launches the receive worker. Bind and device-open failures are
// structural: they surface immediately and leave the session Failed.
// A Failed session may Start again once the cause is cleared.
func (s *Session) Start(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if !s.state.CompareAndSwap(int32(stream.StateIdle), int32(stream.StateNegotiating)) &&
		!s.state.CompareAndSwap(int32(stream.StateFailed), int32(stream.StateNegotiating)) {
		return ErrNotIdle
	}
	s.failure.Store(failure{})

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		s.failSession(err)
		return fmt.Errorf("failed to bind port %d: %w", port, err)
	}

	format := audio.Format{
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		BlockSize:  audio.DefaultBlockSize,
	}
	player, err := s.cfg.Provider.OpenPlayback(format)
	if err != nil {
		_ = conn.Close()
		s.failSession(err)
		return fmt.Errorf("failed to open playback: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.port = port
	s.conn = conn
	s.done = make(chan struct{})
	s.stopping.Store(false)
	s.state.Store(int32(stream.StateStreaming))
	s.logf("receiver %s: listening on :%d, playout at %dHz", s.id, port, format.SampleRate)

	go s.run(conn, player, s.done)

	return nil
}

// Stop closes the socket to unblock the worker and waits for it with a
// bounded timeout. The session always ends Idle.
func (s *Session) Stop() error {
	if stream.State(s.state.Load()) == stream.StateIdle {
		return ErrNotActive
	}

	s.state.Store(int32(stream.StateStopping))
	s.setLevel(0)
	s.stopping.Store(true)

	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(s.cfg.StopTimeout):
			s.logf("receiver %s: worker did not exit within %v", s.id, s.cfg.StopTimeout)
		}
	}

	s.state.Store(int32(stream.StateIdle))
	return nil
}

// State returns the current session state.
func (s *Session) State() stream.State {
	return stream.State(s.state.Load())
}

// Level returns the most recent received-block loudness in [0, 1].
func (s *Session) Level() float64 {
	if s.State() != stream.StateStreaming {
		return 0
	}
	return math.Float64frombits(s.levelBits.Load())
}

// failure wraps the recorded error so the atomic holds one concrete
// type across restarts.
type failure struct {
	err error
}

// Err returns the failure that moved the session to Failed, if any. A
// restart via Start clears it.
func (s *Session) Err() error {
	if f, ok := s.failure.Load().(failure); ok {
		return f.err
	}
	return nil
}

// Port returns the bound port, valid once Streaming.
func (s *Session) Port() int { return s.port }

// Stats returns a snapshot of receive counters.
func (s *Session) Stats() Stats {
	return Stats{
		Packets:     s.packets.Load(),
		Bytes:       s.bytes.Load(),
		Dropped:     s.dropped.Load(),
		ReadErrors:  s.readErrors.Load(),
		WriteErrors: s.writeErrors.Load(),
	}
}

func (s *Session) setLevel(level float64) {
	s.levelBits.Store(math.Float64bits(level))
}

func (s *Session) failSession(err error) {
	s.failure.Store(failure{err: err})
	s.state.Store(int32(stream.StateFailed))
}

// run is the receive -> depacketize -> play loop. One bad datagram or a
// transient playback error never tears the session down; only the
// closed socket ends the loop.
func (s *Session) run(conn packetConn, player playback.Player, done chan struct{}) {
	defer close(done)
	defer func() { _ = player.Close() }()
	defer func() { _ = conn.Close() }()
	defer s.setLevel(0)

	buf := make([]byte, s.cfg.MaxDatagram)

	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.readErrors.Add(1)%100 == 1 {
				s.logf("receiver %s: read failed: %v", s.id, err)
			}
			time.Sleep(readErrDelay)
			continue
		}

		// Zero-length and odd-length payloads are malformed; drop them.
		if n == 0 || n%audio.BytesPerSample != 0 {
			s.dropped.Add(1)
			continue
		}

		samples, err := audio.DecodeLE(buf[:n])
		if err != nil {
			s.dropped.Add(1)
			continue
		}

		if err := player.Write(samples); err != nil {
			if s.writeErrors.Add(1)%100 == 1 {
				s.logf("receiver %s: playback write failed: %v", s.id, err)
			}
			continue
		}

		s.packets.Add(1)
		s.bytes.Add(int64(n))
		s.setLevel(s.cfg.Meter.Level(samples))
	}
}
