// ABOUTME: Test tone generator
// ABOUTME: Produces a deterministic 440Hz sine wave sample stream
package audio

import "math"

// Default tone parameters, matching the mock capture mode used when no
// real microphone is present.
const (
	ToneFrequency = 440.0
	ToneAmplitude = 8000
)

// ToneSource generates a mono sine wave. It is deterministic: the same
// sequence of Fill calls always yields the same samples.
type ToneSource struct {
	sampleRate  int
	frequency   float64
	amplitude   float64
	sampleIndex uint64
}

// NewToneSource creates a tone generator at the given sample rate.
func NewToneSource(sampleRate int) *ToneSource {
	return &ToneSource{
		sampleRate: sampleRate,
		frequency:  ToneFrequency,
		amplitude:  ToneAmplitude,
	}
}

// Fill writes the next len(samples) tone samples into the block.
func (s *ToneSource) Fill(samples []int16) {
	for i := range samples {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		samples[i] = int16(s.amplitude * math.Sin(2*math.Pi*s.frequency*t))
	}
	s.sampleIndex += uint64(len(samples))
}
