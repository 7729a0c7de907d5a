// ABOUTME: Sender streaming session
// ABOUTME: Coordinates negotiation, the capture loop, and UDP packetized sends
package sender

import (
	"context"
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
	"github.com/dmic-audio/dmic-go/internal/stream"
	"github.com/google/uuid"
)

const (
	// DefaultPort is the well-known receiver port.
	DefaultPort = 50005

	// MaxReadErrors bounds consecutive device read failures before the
	// streaming attempt is aborted.
	MaxReadErrors = 20

	// DefaultStopTimeout bounds how long Stop waits for the worker.
	DefaultStopTimeout = 3 * time.Second

	// emptyReadDelay paces retries after a zero-length device read.
	emptyReadDelay = 10 * time.Millisecond
)

// Errors surfaced by the session control surface.
var (
	// ErrInvalidEndpoint reports an empty host or out-of-range port,
	// rejected synchronously before any goroutine starts.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrNotIdle reports Start on a session that already ran or is running.
	ErrNotIdle = errors.New("session is not idle")

	// ErrNotActive reports Stop on an idle session.
	ErrNotActive = errors.New("session is not active")

	// ErrCaptureRead reports that the device produced too many
	// consecutive read errors mid-stream.
	ErrCaptureRead = errors.New("capture device read failure")
)

// Config configures a sender session.
type Config struct {
	Provider    capture.Provider
	BlockSize   int
	Retries     int
	Backoff     time.Duration
	StopTimeout time.Duration
	Meter       *meter.Meter
	Logf        capture.Logf
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Packets    int64
	Bytes      int64
	SendErrors int64
	ReadErrors int64
}

// Session streams microphone audio to one UDP endpoint. Control calls
// (Start, Stop) come from the UI layer; one worker goroutine owns the
// device handle and the socket for the session's lifetime. Level and
// State are lock-free reads safe from any goroutine.
type Session struct {
	cfg  Config
	id   string
	logf capture.Logf

	mu     sync.Mutex // serializes control-surface bookkeeping
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state     atomic.Int32
	levelBits atomic.Uint64
	stop      atomic.Bool
	failure   atomic.Value // failure

	format audio.Format
	remote string

	packets    atomic.Int64
	bytes      atomic.Int64
	sendErrors atomic.Int64
	readErrors atomic.Int64
}

// New creates an idle sender session.
func New(cfg Config) *Session {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = audio.DefaultBlockSize
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

// Start validates the endpoint, negotiates a capture configuration, and
// launches the streaming worker. It blocks through negotiation, which
// may take several seconds across retry passes, so callers invoke it
// off their UI loop. It never blocks on worker I/O. Stop may be called
// concurrently and cancels an in-flight negotiation. A Failed session
// may Start again; the new attempt clears the recorded failure.
func (s *Session) Start(host string, port int) error {
	if host == "" || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %q:%d", ErrInvalidEndpoint, host, port)
	}

	// The CAS and the context assignment happen under mu together so a
	// concurrent Stop always sees the cancel that matches the state.
	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(stream.StateIdle), int32(stream.StateNegotiating)) &&
		!s.state.CompareAndSwap(int32(stream.StateFailed), int32(stream.StateNegotiating)) {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.failure.Store(failure{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx, cancel := s.ctx, s.cancel
	s.remote = fmt.Sprintf("%s:%d", host, port)
	s.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", s.remote)
	if err != nil {
		cancel()
		s.state.Store(int32(stream.StateIdle))
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	negotiator := capture.NewNegotiator(s.cfg.Provider, s.cfg.BlockSize, s.logf)
	if s.cfg.Retries > 0 || s.cfg.Backoff > 0 {
		negotiator.SetRetryPolicy(s.cfg.Retries, s.cfg.Backoff)
	}

	format, dev, err := negotiator.Negotiate(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Stopped while negotiating; Stop() settles the state.
			return err
		}
		cancel()
		s.failSession(err)
		return fmt.Errorf("negotiation failed: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		_ = dev.Close()
		cancel()
		s.failSession(err)
		return fmt.Errorf("failed to open socket: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		// Stopped between negotiation and launch.
		_ = dev.Close()
		_ = conn.Close()
		return ctx.Err()
	}

	s.format = format
	s.done = make(chan struct{})
	s.stop.Store(false)
	s.state.Store(int32(stream.StateStreaming))
	s.logf("sender %s: streaming to %s at %dHz", s.id, s.remote, format.SampleRate)

	go s.run(dev, conn, s.done)

	return nil
}

// Stop signals the worker to exit and waits for it with a bounded
// timeout. The session always ends Idle; a worker that outlives the
// timeout is reported as a warning, never waited on indefinitely.
func (s *Session) Stop() error {
	if stream.State(s.state.Load()) == stream.StateIdle {
		return ErrNotActive
	}

	s.state.Store(int32(stream.StateStopping))
	s.setLevel(0)
	s.stop.Store(true)

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(s.cfg.StopTimeout):
			s.logf("sender %s: worker did not exit within %v", s.id, s.cfg.StopTimeout)
		}
	}

	s.state.Store(int32(stream.StateIdle))
	return nil
}

// State returns the current session state.
func (s *Session) State() stream.State {
	return stream.State(s.state.Load())
}

// Level returns the most recent loudness value in [0, 1]. It reads a
// single atomic word; stale-by-one-block values are fine for a VU meter.
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

// Format returns the negotiated capture format, valid once Streaming.
func (s *Session) Format() audio.Format { return s.format }

// Remote returns the endpoint this session streams to.
func (s *Session) Remote() string { return s.remote }

// Stats returns a snapshot of transport counters.
func (s *Session) Stats() Stats {
	return Stats{
		Packets:    s.packets.Load(),
		Bytes:      s.bytes.Load(),
		SendErrors: s.sendErrors.Load(),
		ReadErrors: s.readErrors.Load(),
	}
}

func (s *Session) setLevel(level float64) {
	s.levelBits.Store(math.Float64bits(level))
}

func (s *Session) failSession(err error) {
	s.failure.Store(failure{err: err})
	s.state.Store(int32(stream.StateFailed))
}

// run is the capture -> packetize -> send loop. It owns the device and
// socket and releases both on every exit path.
func (s *Session) run(dev capture.Device, conn *net.UDPConn, done chan struct{}) {
	defer close(done)
	defer func() { _ = conn.Close() }()
	defer func() { _ = dev.Close() }()
	defer s.setLevel(0)

	block := make([]int16, s.format.BlockSize)
	consecutiveReadErrs := 0

	for !s.stop.Load() {
		n, err := dev.Read(block)
		if err != nil {
			if s.stop.Load() {
				return
			}
			s.readErrors.Add(1)
			consecutiveReadErrs++
			if consecutiveReadErrs >= MaxReadErrors {
				s.logf("sender %s: aborting after %d read errors: %v", s.id, consecutiveReadErrs, err)
				s.failSession(fmt.Errorf("%w: %v", ErrCaptureRead, err))
				return
			}
			continue
		}
		consecutiveReadErrs = 0

		if n == 0 {
			time.Sleep(emptyReadDelay)
			continue
		}

		payload := audio.EncodeLE(block[:n])
		if _, err := conn.Write(payload); err != nil {
			// Audio packets are expendable; a failed send never stops
			// the capture loop.
			if s.sendErrors.Add(1)%100 == 1 {
				s.logf("sender %s: send failed: %v", s.id, err)
			}
		} else {
			s.packets.Add(1)
			s.bytes.Add(int64(len(payload)))
		}

		s.setLevel(s.cfg.Meter.Level(block[:n]))
	}
}
