// Package serial provides the cursor-based primitives shared by the pak and
// utoc decoders: bounds-checked reads from an in-memory buffer, the engine's
// length-prefixed string encoding, strict booleans, and sentinel-encoded
// optional fields.
package serial

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Error kinds surfaced by the decoders. Callers match them with errors.Is.
var (
	// ErrFormat reports malformed data: magic mismatch, version mismatch,
	// invalid boolean byte, or a sentinel used where a value is required.
	ErrFormat = errors.New("invalid format")
	// ErrTruncated reports a declared count, size, or offset that would read
	// past the available data.
	ErrTruncated = errors.New("truncated data")
	// ErrUnsupported reports a feature this decoder detects but never
	// performs, such as an encrypted index or encrypted container.
	ErrUnsupported = errors.New("unsupported feature")
)

// NoneU32 is the on-wire sentinel for an absent optional 32-bit field.
const NoneU32 = ^uint32(0)

// OptionalU32 is the in-memory form of a sentinel-encoded optional field.
// The raw sentinel never escapes past the decode step.
type OptionalU32 struct {
	Value uint32
	Valid bool
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Reader is a monotonically advancing cursor over an in-memory byte buffer.
// Every read validates the remaining length before copying, so corrupt
// counts surface as ErrTruncated rather than out-of-bounds access.
type Reader struct {
	data []byte
	pos  int
}

// NewReader returns a cursor positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int { return r.pos }

// Remaining returns the number of bytes left to read.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Need fails with ErrTruncated unless at least n bytes remain.
func (r *Reader) Need(n int) error {
	if n < 0 || n > r.Remaining() {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.pos, r.Remaining())
	}
	return nil
}

// Bytes consumes and returns the next n bytes. The returned slice aliases
// the underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.Need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	if err := r.Need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// I32 reads a little-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// Bool reads a serialized boolean. Any byte other than 0 or 1 is malformed.
func (r *Reader) Bool() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, fmt.Errorf("%w: invalid boolean value %d at offset %d", ErrFormat, b, r.pos-1)
	}
	return b == 1, nil
}

// GUID16 reads a 128-bit identifier.
func (r *Reader) GUID16() ([16]byte, error) {
	var g [16]byte
	b, err := r.Bytes(16)
	if err != nil {
		return g, err
	}
	copy(g[:], b)
	return g, nil
}

// Hash20 reads a 20-byte content hash.
func (r *Reader) Hash20() ([20]byte, error) {
	var h [20]byte
	b, err := r.Bytes(20)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// OptionalU32 reads a 4-byte field where all bits set means "absent".
func (r *Reader) OptionalU32() (OptionalU32, error) {
	v, err := r.U32()
	if err != nil {
		return OptionalU32{}, err
	}
	if v == NoneU32 {
		return OptionalU32{}, nil
	}
	return OptionalU32{Value: v, Valid: true}, nil
}

// String reads a length-prefixed string. A positive length is that many
// bytes of 8-bit text; a negative length is that many UTF-16LE code units.
// Either form may carry a NUL terminator, which is trimmed along with
// anything after it.
func (r *Reader) String() (string, error) {
	length, err := r.I32()
	if err != nil {
		return "", err
	}
	switch {
	case length == 0:
		return "", nil
	case length < 0:
		n := -int64(length)
		if n*2 > int64(r.Remaining()) {
			return "", fmt.Errorf("%w: utf-16 string of %d code units at offset %d", ErrTruncated, n, r.pos)
		}
		raw, _ := r.Bytes(int(n) * 2)
		for i := 0; i+1 < len(raw); i += 2 {
			if raw[i] == 0 && raw[i+1] == 0 {
				raw = raw[:i]
				break
			}
		}
		decoded, err := utf16le.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: invalid utf-16 string: %v", ErrFormat, err)
		}
		return string(decoded), nil
	default:
		raw, err := r.Bytes(int(length))
		if err != nil {
			return "", err
		}
		for i, b := range raw {
			if b == 0 {
				raw = raw[:i]
				break
			}
		}
		return string(raw), nil
	}
}
