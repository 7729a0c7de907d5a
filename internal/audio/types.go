// ABOUTME: Audio type definitions
// ABOUTME: Defines the capture format and sample-block constants
package audio

const (
	// BytesPerSample is the wire size of one signed 16-bit PCM sample.
	BytesPerSample = 2

	// DefaultBlockSize is the number of samples moved per device read.
	DefaultBlockSize = 1024

	// MaxDatagram bounds the size of a single audio datagram. Large
	// enough for the biggest block any capture config produces.
	MaxDatagram = 8192
)

// Format describes a capture or playback stream: mono signed 16-bit
// little-endian PCM at the given rate. Immutable once a session has
// negotiated it.
type Format struct {
	SampleRate int
	Channels   int
	BlockSize  int
}

// BlockBytes returns the wire size of one full block in this format.
func (f Format) BlockBytes() int {
	return f.BlockSize * f.Channels * BytesPerSample
}
