// Package bitfield reads and writes bit ranges inside a byte buffer.
// Bit 0 is the least significant bit of byte 0; ranges are inclusive.
package bitfield

// Extract returns the unsigned value formed by bits start..end of buf.
func Extract(buf []byte, start, end int) uint32 {
	var value uint32
	bit := 0

	for i := start; i <= end; i++ {
		if buf[i/8]&(1<<(i%8)) != 0 {
			value |= 1 << bit
		}
		bit++
	}

	return value
}

// Apply writes the low (end-start+1) bits of value into bits start..end
// of buf. Bits outside the range are left untouched.
func Apply(buf []byte, value uint32, start, end int) {
	bit := 0

	for i := start; i <= end; i++ {
		if value&(1<<bit) != 0 {
			buf[i/8] |= 1 << (i % 8)
		} else {
			buf[i/8] &^= 1 << (i % 8)
		}
		bit++
	}
}

// Width returns the number of bits in the inclusive range start..end.
func Width(start, end int) int {
	return end - start + 1
}
