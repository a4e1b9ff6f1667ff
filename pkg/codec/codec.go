// Package codec resolves the compression method names recorded by archive
// indices and container tables of contents to decompressors. The decoders
// themselves only record method names and never call into this package;
// it exists for callers that go on to extract payload blocks.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/new-world-tools/go-oodle"
	"github.com/pierrec/lz4/v4"
)

// ErrUnknownMethod reports a compression method name with no registered
// decompressor.
var ErrUnknownMethod = errors.New("unknown compression method")

// Func decompresses one block. uncompressedSize is the exact expected
// output length, as recorded in the block's metadata.
type Func func(src []byte, uncompressedSize int) ([]byte, error)

// For returns the decompressor for a recorded method name. Names are
// matched case-insensitively; the empty name and "None" resolve to a copy.
func For(name string) (Func, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return decompressNone, nil
	case "zlib":
		return decompressZlib, nil
	case "gzip":
		return decompressGzip, nil
	case "zstd":
		return decompressZstd, nil
	case "lz4":
		return decompressLZ4, nil
	case "oodle":
		return decompressOodle, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
}

// Supported reports whether a recorded method name resolves to a
// decompressor.
func Supported(name string) bool {
	_, err := For(name)
	return err == nil
}

func decompressNone(src []byte, uncompressedSize int) ([]byte, error) {
	if len(src) != uncompressedSize {
		return nil, fmt.Errorf("stored block is %d bytes, expected %d", len(src), uncompressedSize)
	}
	dst := make([]byte, uncompressedSize)
	copy(dst, src)
	return dst, nil
}

func decompressZlib(src []byte, uncompressedSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib block: %w", err)
	}
	defer zr.Close()
	return readExactly(zr, uncompressedSize)
}

func decompressGzip(src []byte, uncompressedSize int) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip block: %w", err)
	}
	defer zr.Close()
	return readExactly(zr, uncompressedSize)
}

func decompressZstd(src []byte, uncompressedSize int) ([]byte, error) {
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer zr.Close()
	dst, err := zr.DecodeAll(src, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd block: %w", err)
	}
	if len(dst) != uncompressedSize {
		return nil, fmt.Errorf("zstd block decompressed to %d bytes, expected %d", len(dst), uncompressedSize)
	}
	return dst, nil
}

func decompressLZ4(src []byte, uncompressedSize int) ([]byte, error) {
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress lz4 block: %w", err)
	}
	if n != uncompressedSize {
		return nil, fmt.Errorf("lz4 block decompressed to %d bytes, expected %d", n, uncompressedSize)
	}
	return dst, nil
}

func decompressOodle(src []byte, uncompressedSize int) ([]byte, error) {
	dst, err := oodle.Decompress(src, int64(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress oodle block: %w", err)
	}
	if len(dst) != uncompressedSize {
		return nil, fmt.Errorf("oodle block decompressed to %d bytes, expected %d", len(dst), uncompressedSize)
	}
	return dst, nil
}

func readExactly(r io.Reader, n int) ([]byte, error) {
	dst := make([]byte, n)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, fmt.Errorf("failed to read decompressed block: %w", err)
	}
	// Anything past the expected size means corrupt block metadata.
	var extra [1]byte
	if m, _ := r.Read(extra[:]); m != 0 {
		return nil, fmt.Errorf("block decompressed past expected %d bytes", n)
	}
	return dst, nil
}
