//go:build portaudio

// ABOUTME: PortAudio playback backend
// ABOUTME: Cross-platform blocking-write playback using PortAudio
package playback

import (
	"fmt"
	"sync"

	"github.com/dmic-audio/dmic-go/internal/audio"
	"github.com/gordonklaus/portaudio"
)

// PortAudioProvider opens playback through PortAudio. Selected with the
// portaudio build tag on systems where oto misbehaves.
type PortAudioProvider struct{}

// NewPortAudioProvider creates the PortAudio playback backend.
func NewPortAudioProvider() *PortAudioProvider {
	return &PortAudioProvider{}
}

// OpenPlayback initializes PortAudio and opens the default output stream.
func (p *PortAudioProvider) OpenPlayback(format audio.Format) (Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	player := &portAudioPlayer{}
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate),
		format.BlockSize, &player.buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	player.stream = stream
	return player, nil
}

type portAudioPlayer struct {
	stream    *portaudio.Stream
	buffer    []int16
	closeOnce sync.Once
}

// Write plays one block with a blocking stream write.
func (p *portAudioPlayer) Write(samples []int16) error {
	p.buffer = append(p.buffer[:0], samples...)
	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("stream write failed: %w", err)
	}
	return nil
}

// Close stops the stream and terminates PortAudio.
func (p *portAudioPlayer) Close() error {
	p.closeOnce.Do(func() {
		_ = p.stream.Stop()
		_ = p.stream.Close()
		_ = portaudio.Terminate()
	})
	return nil
}
