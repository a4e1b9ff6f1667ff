package utoc

import (
	"encoding/binary"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/bitpack"
)

// ChunkType is the 6-bit type tag of a chunk identifier.
type ChunkType uint8

const (
	ChunkTypeInvalid ChunkType = iota
	ChunkTypeExportBundleData
	ChunkTypeBulkData
	ChunkTypeOptionalBulkData
	ChunkTypeMemoryMappedBulkData
	ChunkTypeScriptObjects
	ChunkTypeContainerHeader
	ChunkTypeExternalFile
	ChunkTypeShaderCodeLibrary
	ChunkTypeShaderCode
	ChunkTypePackageStoreEntry
	ChunkTypeDerivedData
	ChunkTypeEditorDerivedData
	ChunkTypePackageResource
)

// ChunkID is a 96-bit chunk identifier: a 64-bit id, a 16-bit index, a
// 6-bit type tag, one reserved bit, and one has-version-info bit.
type ChunkID [12]byte

// ID returns the 64-bit identifier.
func (c ChunkID) ID() uint64 { return binary.LittleEndian.Uint64(c[0:8]) }

// Index returns the 16-bit chunk index.
func (c ChunkID) Index() uint16 { return binary.LittleEndian.Uint16(c[8:10]) }

// Type returns the 6-bit type tag.
func (c ChunkID) Type() ChunkType { return ChunkType(bitpack.Tag6(c[10])) }

// HasVersionInfo reports the version-info flag bit.
func (c ChunkID) HasVersionInfo() bool { return bitpack.Bit(c[11], 1) }

// OffsetAndLength packs two 40-bit unsigned integers into 10 bytes.
type OffsetAndLength [10]byte

// Offset returns the 40-bit chunk offset.
func (o OffsetAndLength) Offset() uint64 { return bitpack.Uint40LE(o[0:5]) }

// Length returns the 40-bit chunk length.
func (o OffsetAndLength) Length() uint64 { return bitpack.Uint40LE(o[5:10]) }

// CompressedBlockEntry packs a 40-bit offset, 24-bit compressed and
// uncompressed sizes, and an 8-bit compression method index into 12 bytes.
type CompressedBlockEntry [12]byte

// Offset returns the block's 40-bit byte offset.
func (e CompressedBlockEntry) Offset() uint64 { return bitpack.Uint40LE(e[0:5]) }

// CompressedSize returns the block's 24-bit compressed size.
func (e CompressedBlockEntry) CompressedSize() uint32 { return bitpack.Uint24LE(e[5:8]) }

// UncompressedSize returns the block's 24-bit uncompressed size.
func (e CompressedBlockEntry) UncompressedSize() uint32 { return bitpack.Uint24LE(e[8:11]) }

// CompressionMethodIndex returns the index into the compression method name
// table, where 0 means uncompressed.
func (e CompressedBlockEntry) CompressionMethodIndex() uint8 { return e[11] }

// Chunk metadata flag bits.
const (
	MetaFlagCompressed   = 1 << 0
	MetaFlagMemoryMapped = 1 << 1
)

// ChunkMeta is the per-chunk metadata record: a content hash of 20 or 32
// bytes depending on version, and a flag byte.
type ChunkMeta struct {
	Hash  []byte
	Flags uint8
}

// IsCompressed reports whether the chunk is stored compressed.
func (m *ChunkMeta) IsCompressed() bool { return m.Flags&MetaFlagCompressed != 0 }

// IsMemoryMapped reports whether the chunk is memory-mapped bulk data.
func (m *ChunkMeta) IsMemoryMapped() bool { return m.Flags&MetaFlagMemoryMapped != 0 }
