// ABOUTME: Capture capability-provider interface
// ABOUTME: Abstracts microphone backends behind rate negotiation and block reads
package capture

import (
	"errors"

	"github.com/dmic-audio/dmic-go/internal/audio"
)

// Errors surfaced by capture backends and the negotiator.
var (
	// ErrRateUnsupported reports that a backend cannot open the given
	// sample rate. The negotiator skips the candidate and moves on.
	ErrRateUnsupported = errors.New("sample rate not supported")

	// ErrUnavailable reports that no candidate configuration could be
	// opened after exhausting all retry passes.
	ErrUnavailable = errors.New("no usable capture configuration")
)

// Logf receives component log output. A nil Logf falls back to the
// standard logger; tests substitute a capturing sink.
type Logf func(format string, args ...any)

// Device is an open microphone handle.
type Device interface {
	// Ready reports whether the device actually initialized. Backends
	// may hand back a handle that failed to reach a usable state; the
	// negotiator closes and rejects those.
	Ready() bool

	// Read fills block with captured samples and returns how many were
	// written. It blocks at most for the backend's read timeout; a
	// timeout is a zero-count read, not an error.
	Read(block []int16) (int, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// Provider exposes the capture capabilities of one audio backend.
type Provider interface {
	// CandidateRates lists supported sample rates, highest quality first.
	CandidateRates() []int

	// MinBufferSize returns the backend's minimum capture buffer in
	// bytes for the rate, or ErrRateUnsupported.
	MinBufferSize(rate int) (int, error)

	// OpenCapture opens a device for the format with the given buffer.
	OpenCapture(format audio.Format, bufferBytes int) (Device, error)
}
