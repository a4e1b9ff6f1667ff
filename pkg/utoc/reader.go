// Package utoc decodes the header-anchored table of contents of a chunk
// store container: a fixed header followed by a strict sequence of
// variable-length sections. Decoding is single-pass over an in-memory copy
// of the whole file; any section error aborts the open and discards all
// partial state. Like the pak reader this is metadata-only: codecs are
// recorded by name but never invoked, and encrypted containers are
// rejected.
package utoc

import (
	"fmt"
	"os"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/dirindex"
	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

const (
	chunkIDSize         = 12
	offsetAndLengthSize = 10
	blockEntrySize      = 12
	blockSignatureSize  = 20 // one SHA-1 per compressed block
)

// Reader is a fully decoded table of contents. All structures are built
// during a single successful open and never mutated afterwards, so a Reader
// is safe for concurrent use.
type Reader struct {
	header                         Header
	chunkIDs                       []ChunkID
	offsetLengths                  []OffsetAndLength
	perfectHashSeeds               []int32
	chunkIndicesWithoutPerfectHash []int32
	compressionBlocks              []CompressedBlockEntry
	compressionMethods             []string
	chunkMetas                     []ChunkMeta
	directoryIndex                 *dirindex.Resource
	files                          []string
}

// Open reads the whole file at path into memory and decodes it.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("utoc: failed to read %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses a complete table of contents from data.
func Decode(data []byte) (*Reader, error) {
	r := serial.NewReader(data)
	reader := &Reader{}

	var err error
	if reader.header, err = decodeHeader(r); err != nil {
		return nil, err
	}
	h := &reader.header

	// Chunk ID table.
	if err := r.Need(int(h.EntryCount) * chunkIDSize); err != nil {
		return nil, fmt.Errorf("utoc: chunk id table of %d entries: %w", h.EntryCount, err)
	}
	reader.chunkIDs = make([]ChunkID, h.EntryCount)
	for i := range reader.chunkIDs {
		b, _ := r.Bytes(chunkIDSize)
		copy(reader.chunkIDs[i][:], b)
	}

	// Offset/length table.
	if err := r.Need(int(h.EntryCount) * offsetAndLengthSize); err != nil {
		return nil, fmt.Errorf("utoc: offset/length table of %d entries: %w", h.EntryCount, err)
	}
	reader.offsetLengths = make([]OffsetAndLength, h.EntryCount)
	for i := range reader.offsetLengths {
		b, _ := r.Bytes(offsetAndLengthSize)
		copy(reader.offsetLengths[i][:], b)
	}

	// Perfect hash tables, present only for versions that introduced them.
	if h.Version >= VersionPerfectHash {
		if reader.perfectHashSeeds, err = readInt32Table(r, h.PerfectHashSeedsCount, "perfect hash seed"); err != nil {
			return nil, err
		}
	}
	if h.Version >= VersionPerfectHashWithOverflow {
		if reader.chunkIndicesWithoutPerfectHash, err = readInt32Table(r, h.ChunksWithoutPerfectHashCount, "unhashed chunk index"); err != nil {
			return nil, err
		}
	}

	// Compressed block table.
	if err := r.Need(int(h.CompressedBlockEntryCount) * blockEntrySize); err != nil {
		return nil, fmt.Errorf("utoc: compressed block table of %d entries: %w", h.CompressedBlockEntryCount, err)
	}
	reader.compressionBlocks = make([]CompressedBlockEntry, h.CompressedBlockEntryCount)
	for i := range reader.compressionBlocks {
		b, _ := r.Bytes(blockEntrySize)
		copy(reader.compressionBlocks[i][:], b)
	}

	// Compression method names: fixed-width slots trimmed at the first NUL.
	// Method index 0 is implicitly "no compression" and has no slot.
	if err := r.Need(int(h.CompressionMethodNameCount) * int(h.CompressionMethodNameLength)); err != nil {
		return nil, fmt.Errorf("utoc: %d compression method names of %d bytes: %w", h.CompressionMethodNameCount, h.CompressionMethodNameLength, err)
	}
	reader.compressionMethods = make([]string, h.CompressionMethodNameCount)
	for i := range reader.compressionMethods {
		raw, _ := r.Bytes(int(h.CompressionMethodNameLength))
		reader.compressionMethods[i] = trimAtNul(raw)
	}

	// Signature block: the sizes are read, the bytes discarded.
	if h.IsSigned() {
		signatureSize, err := r.U32()
		if err != nil {
			return nil, fmt.Errorf("utoc: failed to read signature size: %w", err)
		}
		skip := int(signatureSize)*2 + int(h.CompressedBlockEntryCount)*blockSignatureSize
		if err := r.Skip(skip); err != nil {
			return nil, fmt.Errorf("utoc: signature block of %d bytes: %w", skip, err)
		}
	}

	if h.IsEncrypted() {
		return nil, fmt.Errorf("utoc: container is encrypted, decryption not supported: %w", serial.ErrUnsupported)
	}

	// Directory index.
	if h.IsIndexed() && h.DirectoryIndexSize > 0 {
		region, err := r.Bytes(int(h.DirectoryIndexSize))
		if err != nil {
			return nil, fmt.Errorf("utoc: directory index of %d bytes: %w", h.DirectoryIndexSize, err)
		}
		if reader.directoryIndex, err = dirindex.Parse(region); err != nil {
			return nil, fmt.Errorf("utoc: failed to parse directory index: %w", err)
		}
		if reader.files, err = reader.directoryIndex.AllFilePaths(); err != nil {
			return nil, fmt.Errorf("utoc: failed to reconstruct file paths: %w", err)
		}
	}

	// Per-chunk metadata. The unified-hash version shrank the record to a
	// 20-byte hash, one flag byte, and 3 bytes of padding; earlier versions
	// store a full 32-byte hash and the flag byte with no padding.
	metaSize, hashSize, padding := 33, 32, 0
	if h.Version >= VersionReplaceIoChunkHashWithIoHash {
		metaSize, hashSize, padding = 24, 20, 3
	}
	if err := r.Need(int(h.EntryCount) * metaSize); err != nil {
		return nil, fmt.Errorf("utoc: chunk metadata table of %d entries: %w", h.EntryCount, err)
	}
	reader.chunkMetas = make([]ChunkMeta, h.EntryCount)
	for i := range reader.chunkMetas {
		// Bytes aliases the input buffer; the hash must not keep the
		// caller's data alive or visible.
		hash, _ := r.Bytes(hashSize)
		reader.chunkMetas[i].Hash = append([]byte(nil), hash...)
		reader.chunkMetas[i].Flags, _ = r.U8()
		r.Skip(padding)
	}

	return reader, nil
}

func readInt32Table(r *serial.Reader, count uint32, what string) ([]int32, error) {
	if err := r.Need(int(count) * 4); err != nil {
		return nil, fmt.Errorf("utoc: %s table of %d entries: %w", what, count, err)
	}
	table := make([]int32, count)
	for i := range table {
		table[i], _ = r.I32()
	}
	return table, nil
}

func trimAtNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Header returns the decoded fixed header.
func (r *Reader) Header() Header { return r.header }

// Version returns the declared format version.
func (r *Reader) Version() Version { return r.header.Version }

// MountPoint returns the directory index's root path prefix, or "" when the
// container carries no directory index.
func (r *Reader) MountPoint() string {
	if r.directoryIndex == nil {
		return ""
	}
	return r.directoryIndex.MountPoint
}

// EncryptedIndex reports whether the container is encrypted. Encrypted
// containers fail to open, so this is always false for an open Reader.
func (r *Reader) EncryptedIndex() bool { return r.header.IsEncrypted() }

// EncryptionGUID returns the header's 128-bit encryption key identifier;
// the boolean is false when the container carries the zero identifier.
func (r *Reader) EncryptionGUID() ([16]byte, bool) {
	return r.header.EncryptionKeyGUID, r.header.EncryptionKeyGUID != [16]byte{}
}

// Files returns the complete list of file paths from the directory index,
// in traversal order.
func (r *Reader) Files() []string { return r.files }

// Directories returns every unique ancestor directory of every file path,
// deduplicated and lexicographically sorted.
func (r *Reader) Directories() []string { return dirindex.ParentDirectories(r.files) }

// DirectoryIndex returns the decoded directory index, or nil when the
// container carries none.
func (r *Reader) DirectoryIndex() *dirindex.Resource { return r.directoryIndex }

// ChunkIDs returns the chunk identifier table.
func (r *Reader) ChunkIDs() []ChunkID { return r.chunkIDs }

// ChunkOffsetLengths returns the packed offset/length table.
func (r *Reader) ChunkOffsetLengths() []OffsetAndLength { return r.offsetLengths }

// CompressionBlocks returns the compressed block entry table.
func (r *Reader) CompressionBlocks() []CompressedBlockEntry { return r.compressionBlocks }

// CompressionMethods returns the recorded compression method names. Block
// entries index this table 1-based; index 0 means uncompressed.
func (r *Reader) CompressionMethods() []string { return r.compressionMethods }

// ChunkMetas returns the per-chunk metadata table.
func (r *Reader) ChunkMetas() []ChunkMeta { return r.chunkMetas }

// PerfectHashSeeds returns the perfect hash seed table, empty for versions
// predating perfect hashing.
func (r *Reader) PerfectHashSeeds() []int32 { return r.perfectHashSeeds }

// ChunkIndicesWithoutPerfectHash returns the overflow chunk index table,
// empty for versions predating overflow handling.
func (r *Reader) ChunkIndicesWithoutPerfectHash() []int32 { return r.chunkIndicesWithoutPerfectHash }
