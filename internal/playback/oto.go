// ABOUTME: Oto-based playback backend
// ABOUTME: Streams PCM through a persistent pipe-fed oto player
package playback

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/dmic-audio/dmic-go/internal/audio"
	"github.com/ebitengine/oto/v3"
)

// OtoProvider opens playback through the oto library. oto allows only
// one context per process, so the provider keeps it for reuse.
type OtoProvider struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	format audio.Format
	logf   Logf
}

// NewOtoProvider creates the oto playback backend.
func NewOtoProvider(logf Logf) *OtoProvider {
	if logf == nil {
		logf = log.Printf
	}
	return &OtoProvider{logf: logf}
}

// OpenPlayback initializes oto for the format and returns a player that
// streams continuously through a pipe.
func (p *OtoProvider) OpenPlayback(format audio.Format) (Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		p.otoCtx = ctx
		p.format = format
		p.logf("playback: output initialized at %dHz, %d channel(s)", format.SampleRate, format.Channels)
	} else if p.format.SampleRate != format.SampleRate || p.format.Channels != format.Channels {
		// oto cannot reinitialize within one process; keep the existing
		// context and let the caller hear the rate mismatch.
		p.logf("playback: format change %dHz -> %dHz ignored, oto context already exists",
			p.format.SampleRate, format.SampleRate)
	}

	pipeReader, pipeWriter := io.Pipe()
	player := p.otoCtx.NewPlayer(pipeReader)
	player.Play()

	return &otoPlayer{
		player:     player,
		pipeReader: pipeReader,
		pipeWriter: pipeWriter,
	}, nil
}

type otoPlayer struct {
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	closeOnce  sync.Once
}

// Write feeds samples into the pipe behind the persistent player. The
// write blocks while oto's internal buffer is full, which is the
// backpressure that keeps playout continuous.
func (o *otoPlayer) Write(samples []int16) error {
	if _, err := o.pipeWriter.Write(audio.EncodeLE(samples)); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close tears down the player and its pipe.
func (o *otoPlayer) Close() error {
	o.closeOnce.Do(func() {
		_ = o.pipeWriter.Close()
		_ = o.player.Close()
		_ = o.pipeReader.Close()
	})
	return nil
}
