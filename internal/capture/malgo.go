// ABOUTME: Malgo-based microphone capture backend
// ABOUTME: Uses the miniaudio library via malgo for real microphone input
package capture

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dmic-audio/dmic-go/internal/audio"
	"github.com/gen2brain/malgo"
)

// readTimeout bounds a single device read. A timeout surfaces as a
// zero-count read so the send loop can poll its stop flag.
const readTimeout = 250 * time.Millisecond

// MalgoProvider captures from the default system microphone through
// miniaudio. One provider may open at most one device at a time, which
// matches how the negotiator uses it.
type MalgoProvider struct {
	rates []int
	logf  Logf
}

// NewMalgoProvider creates a microphone backend over the candidate rates.
func NewMalgoProvider(rates []int, logf Logf) *MalgoProvider {
	if len(rates) == 0 {
		rates = []int{44100, 22050, 16000, 8000}
	}
	if logf == nil {
		logf = log.Printf
	}
	return &MalgoProvider{rates: rates, logf: logf}
}

// CandidateRates lists the configured rates, priority first.
func (p *MalgoProvider) CandidateRates() []int { return p.rates }

// MinBufferSize reports 20ms of samples as the minimum buffer.
// miniaudio has no capability query; it resamples internally when the
// hardware rejects a rate, so any positive rate is reported usable and
// the real rejection, if any, happens at open time.
func (p *MalgoProvider) MinBufferSize(rate int) (int, error) {
	if rate <= 0 {
		return 0, ErrRateUnsupported
	}
	return rate / 50 * audio.BytesPerSample, nil
}

// OpenCapture opens the default microphone at the given format.
func (p *MalgoProvider) OpenCapture(format audio.Format, bufferBytes int) (Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	dev := &malgoDevice{
		mctx: mctx,
		// Chunk capacity covers the negotiated buffer; overflow chunks
		// are dropped rather than blocking the device callback.
		chunks: make(chan []int16, bufferChunks(bufferBytes, format)),
		closed: make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			dev.onSamples(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	dev.device = device
	p.logf("capture: microphone open at %dHz (malgo)", format.SampleRate)
	return dev, nil
}

// bufferChunks sizes the chunk channel from the negotiated buffer.
func bufferChunks(bufferBytes int, format audio.Format) int {
	blockBytes := format.BlockBytes()
	if blockBytes <= 0 {
		return 4
	}
	n := bufferBytes / blockBytes
	if n < 4 {
		n = 4
	}
	return n
}

type malgoDevice struct {
	mctx   *malgo.AllocatedContext
	device *malgo.Device

	chunks   chan []int16
	leftover []int16
	dropped  int

	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Ready reports whether the device reached its started state.
func (d *malgoDevice) Ready() bool {
	return d.device != nil && d.device.IsStarted()
}

// onSamples runs on the miniaudio callback thread. It must never block,
// so full buffers drop the chunk.
func (d *malgoDevice) onSamples(input []byte) {
	if len(input) < audio.BytesPerSample {
		return
	}
	n := len(input) / audio.BytesPerSample
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*audio.BytesPerSample:]))
	}

	select {
	case d.chunks <- samples:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
	}
}

// Read fills block from the capture stream. It returns once the block is
// full, or with a partial (possibly zero) count when the read timeout
// expires first.
func (d *malgoDevice) Read(block []int16) (int, error) {
	n := copy(block, d.leftover)
	d.leftover = d.leftover[n:]

	if n == len(block) {
		return n, nil
	}

	timer := time.NewTimer(readTimeout)
	defer timer.Stop()

	for n < len(block) {
		select {
		case <-d.closed:
			return n, errDeviceClosed
		case chunk := <-d.chunks:
			m := copy(block[n:], chunk)
			if m < len(chunk) {
				d.leftover = chunk[m:]
			}
			n += m
		case <-timer.C:
			return n, nil
		}
	}
	return n, nil
}

// Close stops the device and releases the malgo context.
func (d *malgoDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		if d.device != nil {
			d.device.Uninit()
		}
		if d.mctx != nil {
			_ = d.mctx.Uninit()
			d.mctx.Free()
		}
	})
	return nil
}
