//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Compile-time placeholder when built without the portaudio tag
package playback

import (
	"fmt"

	"github.com/dmic-audio/dmic-go/internal/audio"
)

// PortAudioProvider stub used when PortAudio support is not compiled in.
type PortAudioProvider struct{}

// NewPortAudioProvider creates the stub backend.
func NewPortAudioProvider() *PortAudioProvider {
	return &PortAudioProvider{}
}

// OpenPlayback always fails without the portaudio build tag.
func (p *PortAudioProvider) OpenPlayback(format audio.Format) (Player, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}
