// ABOUTME: Tone capture backend
// ABOUTME: Fakes a microphone with a paced 440Hz sine, for machines without mics
package capture

import (
	"errors"
	"time"

	"github.com/dmic-audio/dmic-go/internal/audio"
)

var errDeviceClosed = errors.New("capture device closed")

// ToneProvider is a capture backend that produces a test tone instead of
// reading a microphone. It accepts every candidate rate and paces reads
// at real time, so the rest of the pipeline behaves exactly as it does
// with live hardware.
type ToneProvider struct {
	rates []int
}

// NewToneProvider creates a tone backend over the given candidate rates.
func NewToneProvider(rates []int) *ToneProvider {
	if len(rates) == 0 {
		rates = []int{44100, 22050, 16000, 8000}
	}
	return &ToneProvider{rates: rates}
}

// CandidateRates lists the configured rates, priority first.
func (p *ToneProvider) CandidateRates() []int { return p.rates }

// MinBufferSize reports 20ms worth of samples as the minimum buffer.
func (p *ToneProvider) MinBufferSize(rate int) (int, error) {
	if rate <= 0 {
		return 0, ErrRateUnsupported
	}
	return rate / 50 * audio.BytesPerSample, nil
}

// OpenCapture opens a paced tone device for the format.
func (p *ToneProvider) OpenCapture(format audio.Format, bufferBytes int) (Device, error) {
	return &toneDevice{
		src:      audio.NewToneSource(format.SampleRate),
		interval: time.Duration(format.BlockSize) * time.Second / time.Duration(format.SampleRate),
		next:     time.Now(),
		closed:   make(chan struct{}),
	}, nil
}

type toneDevice struct {
	src      *audio.ToneSource
	interval time.Duration
	next     time.Time
	closed   chan struct{}
}

func (d *toneDevice) Ready() bool { return true }

// Read fills the block with the next tone samples, sleeping so that
// blocks arrive at the rate a real microphone would deliver them.
func (d *toneDevice) Read(block []int16) (int, error) {
	select {
	case <-d.closed:
		return 0, errDeviceClosed
	default:
	}

	if wait := time.Until(d.next); wait > 0 {
		select {
		case <-d.closed:
			return 0, errDeviceClosed
		case <-time.After(wait):
		}
	}
	d.next = d.next.Add(d.interval)

	d.src.Fill(block)
	return len(block), nil
}

func (d *toneDevice) Close() error {
	select {
	case <-d.closed:
	default:
		close(d.closed)
	}
	return nil
}
