// ABOUTME: Tests for the level meter
// ABOUTME: Covers silence, clipping, monotonicity, and subsampling
package meter

import "testing"

func TestSilentBlockIsZero(t *testing.T) {
	m := New()
	block := make([]int16, 1024)

	if level := m.Level(block); level != 0 {
		t.Errorf("expected 0 for silence, got %f", level)
	}
}

func TestEmptyBlockIsZero(t *testing.T) {
	m := New()
	if level := m.Level(nil); level != 0 {
		t.Errorf("expected 0 for empty block, got %f", level)
	}
}

func TestFullScaleClampsToOne(t *testing.T) {
	m := New()
	block := make([]int16, 1024)
	for i := range block {
		block[i] = 32767
	}

	if level := m.Level(block); level != 1.0 {
		t.Errorf("expected clamp to 1.0, got %f", level)
	}
}

func TestMonotonicInAmplitude(t *testing.T) {
	m := New()
	quiet := make([]int16, 1024)
	loud := make([]int16, 1024)
	for i := range quiet {
		sign := int16(1)
		if i%2 == 1 {
			sign = -1
		}
		quiet[i] = 1000 * sign
		loud[i] = 4000 * sign
	}

	lq := m.Level(quiet)
	ll := m.Level(loud)
	if ll < lq {
		t.Errorf("louder block measured quieter: %f < %f", ll, lq)
	}
	if lq <= 0 {
		t.Errorf("non-silent block measured as silence: %f", lq)
	}
}

func TestKnownRMSValue(t *testing.T) {
	// A constant block of 8192 has RMS 8192 -> 8192/16384 = 0.5.
	m := New()
	block := make([]int16, 1024)
	for i := range block {
		block[i] = 8192
	}

	level := m.Level(block)
	if level < 0.499 || level > 0.501 {
		t.Errorf("expected ~0.5, got %f", level)
	}
}

func TestSubsampledMeterIsClose(t *testing.T) {
	full := New()
	strided := NewWithOptions(DefaultNorm, 4)

	block := make([]int16, 4096)
	for i := range block {
		sign := int16(1)
		if i%2 == 1 {
			sign = -1
		}
		block[i] = int16(3000+i%100) * sign
	}

	a := full.Level(block)
	b := strided.Level(block)
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff > 0.05 {
		t.Errorf("subsampled level diverged: full=%f strided=%f", a, b)
	}
}

func TestSubsampledMeterDeterministic(t *testing.T) {
	m := NewWithOptions(DefaultNorm, 8)
	block := make([]int16, 2048)
	for i := range block {
		block[i] = int16(i % 7000)
	}

	if m.Level(block) != m.Level(block) {
		t.Error("same block produced different levels")
	}
}

func TestOptionFallbacks(t *testing.T) {
	m := NewWithOptions(-1, 0)
	if m.norm != DefaultNorm || m.stride != DefaultStride {
		t.Errorf("expected defaults, got norm=%f stride=%d", m.norm, m.stride)
	}
}
