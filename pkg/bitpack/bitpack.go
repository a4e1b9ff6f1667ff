// Package bitpack decodes and encodes the sub-byte-width integer fields used
// by the archive formats: 40-bit offsets, 24-bit sizes, and the 6-bit type
// tag packed into a chunk identifier. Widths and layouts here are defined by
// the wire formats, not by native alignment, so every access goes through an
// explicit shift/mask rather than reinterpreting memory.
package bitpack

// Uint40LE decodes a little-endian 40-bit unsigned integer from b[0:5].
// The high 24 bits of the result are always zero.
func Uint40LE(b []byte) uint64 {
	_ = b[4]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 |
		uint64(b[3])<<24 | uint64(b[4])<<32
}

// PutUint40LE encodes the low 40 bits of v into b[0:5] in little-endian
// byte order.
func PutUint40LE(b []byte, v uint64) {
	_ = b[4]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
}

// Uint24LE decodes a little-endian 24-bit unsigned integer from b[0:3].
func Uint24LE(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// PutUint24LE encodes the low 24 bits of v into b[0:3] in little-endian
// byte order.
func PutUint24LE(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// Tag6 extracts the 6-bit type tag from a tag byte. The tag occupies the six
// low-order bits; the two high-order bits are flag bits addressed by Bit.
func Tag6(b byte) uint8 {
	return b & 0x3F
}

// Bit reports whether bit i of b is set, counting in big-endian bit order:
// i==0 is the most significant bit, i==7 the least.
func Bit(b byte, i uint) bool {
	return b>>(7-i)&1 == 1
}
