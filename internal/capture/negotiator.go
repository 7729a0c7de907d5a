// ABOUTME: Capture configuration negotiator
// ABOUTME: Walks candidate sample rates until a device opens, with bounded retries
package capture

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dmic-audio/dmic-go/internal/audio"
)

const (
	// DefaultRetries is how many full passes over the candidate list are
	// made before giving up.
	DefaultRetries = 3

	// DefaultBackoff separates consecutive passes. Devices that are busy
	// or mid-reset often recover within a couple of seconds.
	DefaultBackoff = 2 * time.Second

	// bufferFactor scales the backend's minimum buffer. Headroom over
	// the minimum absorbs scheduling jitter between device callbacks
	// and the send loop.
	bufferFactor = 4
)

// Negotiator finds a capture format the underlying device will accept.
// Many devices reject sample rates arbitrarily, so candidates are tried
// in priority order and the whole list is retried on total failure.
type Negotiator struct {
	provider  Provider
	blockSize int
	retries   int
	backoff   time.Duration
	logf      Logf
}

// NewNegotiator creates a negotiator over the given provider.
func NewNegotiator(provider Provider, blockSize int, logf Logf) *Negotiator {
	if blockSize <= 0 {
		blockSize = audio.DefaultBlockSize
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Negotiator{
		provider:  provider,
		blockSize: blockSize,
		retries:   DefaultRetries,
		backoff:   DefaultBackoff,
		logf:      logf,
	}
}

// SetRetryPolicy overrides the pass count and backoff between passes.
func (n *Negotiator) SetRetryPolicy(retries int, backoff time.Duration) {
	if retries > 0 {
		n.retries = retries
	}
	if backoff >= 0 {
		n.backoff = backoff
	}
}

// Negotiate tries each candidate rate in priority order and returns the
// first format whose device opens and reports ready. On return at most
// one device handle is open: the accepted one. ErrUnavailable is
// returned once all retry passes are exhausted.
func (n *Negotiator) Negotiate(ctx context.Context) (audio.Format, Device, error) {
	for pass := 0; pass < n.retries; pass++ {
		if pass > 0 {
			n.logf("capture: pass %d/%d failed, retrying in %v", pass, n.retries, n.backoff)
			select {
			case <-ctx.Done():
				return audio.Format{}, nil, ctx.Err()
			case <-time.After(n.backoff):
			}
		}

		format, dev, ok := n.tryCandidates()
		if ok {
			n.logf("capture: opened %dHz mono, block %d samples", format.SampleRate, format.BlockSize)
			return format, dev, nil
		}
	}

	return audio.Format{}, nil, fmt.Errorf("exhausted %d passes: %w", n.retries, ErrUnavailable)
}

// tryCandidates makes one pass over the candidate list.
func (n *Negotiator) tryCandidates() (audio.Format, Device, bool) {
	for _, rate := range n.provider.CandidateRates() {
		minBuf, err := n.provider.MinBufferSize(rate)
		if err != nil || minBuf <= 0 {
			continue
		}

		format := audio.Format{SampleRate: rate, Channels: 1, BlockSize: n.blockSize}
		bufBytes := minBuf * bufferFactor
		if bufBytes < format.BlockBytes() {
			bufBytes = format.BlockBytes()
		}

		dev, err := n.provider.OpenCapture(format, bufBytes)
		if err != nil {
			n.logf("capture: open %dHz failed: %v", rate, err)
			continue
		}
		if !dev.Ready() {
			// Partially opened but never initialized; release before
			// trying the next candidate.
			_ = dev.Close()
			n.logf("capture: %dHz device not ready, released", rate)
			continue
		}

		return format, dev, true
	}
	return audio.Format{}, nil, false
}
