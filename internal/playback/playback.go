// ABOUTME: Playback device interface
// ABOUTME: Abstracts speaker backends consumed by the receiver session
package playback

import "github.com/dmic-audio/dmic-go/internal/audio"

// Logf receives backend log output. A nil Logf falls back to the
// standard logger; tests substitute a capturing sink.
type Logf func(format string, args ...any)

// Player is an open speaker handle. The device performs its own
// internal buffering; Write hands samples off and may block briefly
// while the backend drains.
type Player interface {
	// Write queues a block of mono PCM16 samples for playout.
	Write(samples []int16) error

	// Close releases playback resources. Safe to call more than once.
	Close() error
}

// Provider opens playback devices.
type Provider interface {
	OpenPlayback(format audio.Format) (Player, error)
}
