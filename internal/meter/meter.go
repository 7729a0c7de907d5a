// ABOUTME: Audio level meter
// ABOUTME: Computes a normalized RMS loudness value from a sample block
package meter

import "math"

const (
	// DefaultNorm is the RMS value mapped to full scale. Chosen
	// empirically for speech on 16-bit PCM.
	DefaultNorm = 16384.0

	// DefaultStride examines every Nth sample. Block-rate metering does
	// not need every sample; the stride is fixed so the estimate is
	// deterministic for a given block.
	DefaultStride = 1
)

// Meter converts sample blocks into a loudness value in [0, 1].
type Meter struct {
	norm   float64
	stride int
}

// New creates a meter with the default normalization and stride.
func New() *Meter {
	return &Meter{norm: DefaultNorm, stride: DefaultStride}
}

// NewWithOptions creates a meter with an explicit normalization constant
// and subsampling stride. Values out of range fall back to the defaults.
func NewWithOptions(norm float64, stride int) *Meter {
	if norm <= 0 {
		norm = DefaultNorm
	}
	if stride < 1 {
		stride = DefaultStride
	}
	return &Meter{norm: norm, stride: stride}
}

// Level returns the normalized RMS magnitude of the block, clamped to
// [0, 1]. An empty block is silent.
func (m *Meter) Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	count := 0
	for i := 0; i < len(samples); i += m.stride {
		s := float64(samples[i])
		sum += s * s
		count++
	}

	rms := math.Sqrt(sum / float64(count))
	level := rms / m.norm
	if level > 1.0 {
		level = 1.0
	}
	return level
}
