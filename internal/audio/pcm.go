// ABOUTME: PCM16 wire codec
// ABOUTME: Converts sample blocks to and from little-endian datagram payloads
package audio

import (
	"encoding/binary"
	"errors"
)

// ErrOddLength is returned when a payload cannot hold whole 16-bit samples.
var ErrOddLength = errors.New("payload length is not a multiple of sample size")

// EncodeLE serializes samples as little-endian PCM16. The result is the
// exact datagram payload: no header, no sequence number, no timestamp.
func EncodeLE(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// DecodeLE interprets a datagram payload as little-endian PCM16 samples.
// Odd-length payloads are malformed and rejected.
func DecodeLE(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, ErrOddLength
	}
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return samples, nil
}
