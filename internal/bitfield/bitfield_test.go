package bitfield

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

func TestExtract(t *testing.T) {
	buf := []byte{0xb4, 0x01}

	assert.Equal(t, uint32(0), Extract(buf, 0, 1))
	assert.Equal(t, uint32(1), Extract(buf, 2, 2))
	assert.Equal(t, uint32(0x1b4), Extract(buf, 0, 15))
	assert.Equal(t, uint32(0xb), Extract(buf, 4, 7))
	assert.Equal(t, uint32(0x2), Extract(buf, 1, 3))
}

func TestExtractCrossesByteBoundary(t *testing.T) {
	buf := []byte{0x00, 0xff, 0x0f}

	// bits 8..19 cover all of byte 1 and the low nibble of byte 2
	assert.Equal(t, uint32(0xfff), Extract(buf, 8, 19))
	// bits 6 and 7 come from the cleared byte 0
	assert.Equal(t, uint32(0x3c), Extract(buf, 6, 11))
}

func TestApply(t *testing.T) {
	buf := []byte{0x00, 0x00}

	Apply(buf, 0x5, 4, 6)
	assert.Equal(t, byte(0x50), buf[0])
	assert.Equal(t, byte(0x00), buf[1])

	// clearing bits inside the range works too
	Apply(buf, 0x0, 4, 6)
	assert.Equal(t, byte(0x00), buf[0])
}

func TestApplyPreservesOutsideBits(t *testing.T) {
	buf := []byte{0xff, 0xff}

	Apply(buf, 0, 4, 11)
	assert.Equal(t, byte(0x0f), buf[0])
	assert.Equal(t, byte(0xf0), buf[1])
}

func TestApplyExtractRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xa5
	}

	for start := 0; start < 32; start++ {
		for end := start; end < start+20; end++ {
			before := make([]byte, len(buf))
			copy(before, buf)

			value := uint32(0x12345678) & (1<<Width(start, end) - 1)
			Apply(buf, value, start, end)
			assert.Equal(t, value, Extract(buf, start, end))

			// restore and check nothing outside the range moved
			Apply(buf, Extract(before, start, end), start, end)
			for i := range buf {
				assert.Equal(t, before[i], buf[i])
			}
		}
	}
}
