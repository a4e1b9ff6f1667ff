package utoc

import (
	"bytes"
	"fmt"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

// Magic is the fixed 16-byte signature at the start of every container
// table of contents.
var Magic = [16]byte{'-', '=', '=', '-', '-', '=', '=', '-', '-', '=', '=', '-', '-', '=', '=', '-'}

// headerSize is the fixed on-disk size of the header, reserved fields
// included.
const headerSize = 144

// Version enumerates the table-of-contents format versions. Unlike the pak
// footer there is no probing: the version is a single byte read directly
// from the fixed header.
type Version uint8

const (
	VersionInvalid Version = iota
	VersionInitial
	VersionDirectoryIndex
	VersionPartitionSize
	VersionPerfectHash
	VersionPerfectHashWithOverflow
	VersionOnDemandMetaData
	VersionRemovedOnDemandMetaData
	VersionReplaceIoChunkHashWithIoHash
)

// ContainerFlags is the header's container flag byte.
type ContainerFlags uint8

const (
	ContainerFlagCompressed ContainerFlags = 1 << iota
	ContainerFlagEncrypted
	ContainerFlagSigned
	ContainerFlagIndexed
)

// Header is the decoded fixed-layout table-of-contents header.
type Header struct {
	Magic                         [16]byte
	Version                       Version
	HeaderSize                    uint32
	EntryCount                    uint32
	CompressedBlockEntryCount     uint32
	CompressedBlockEntrySize      uint32
	CompressionMethodNameCount    uint32
	CompressionMethodNameLength   uint32
	CompressionBlockSize          uint32
	DirectoryIndexSize            uint32
	PartitionCount                uint32
	ContainerID                   uint64
	EncryptionKeyGUID             [16]byte
	ContainerFlags                ContainerFlags
	PerfectHashSeedsCount         uint32
	PartitionSize                 uint64
	ChunksWithoutPerfectHashCount uint32
}

// IsCompressed reports whether the container holds compressed blocks.
func (h Header) IsCompressed() bool { return h.ContainerFlags&ContainerFlagCompressed != 0 }

// IsEncrypted reports whether the container is encrypted. Encrypted
// containers are detected and rejected, never decrypted.
func (h Header) IsEncrypted() bool { return h.ContainerFlags&ContainerFlagEncrypted != 0 }

// IsSigned reports whether the container carries a signature block.
func (h Header) IsSigned() bool { return h.ContainerFlags&ContainerFlagSigned != 0 }

// IsIndexed reports whether the container carries a directory index.
func (h Header) IsIndexed() bool { return h.ContainerFlags&ContainerFlagIndexed != 0 }

// decodeHeader reads the fixed header, reserved fields skipped.
func decodeHeader(r *serial.Reader) (Header, error) {
	var h Header
	if err := r.Need(headerSize); err != nil {
		return h, fmt.Errorf("utoc: header: %w", err)
	}

	magic, _ := r.Bytes(16)
	copy(h.Magic[:], magic)
	if !bytes.Equal(h.Magic[:], Magic[:]) {
		return h, fmt.Errorf("%w: invalid toc magic % X", serial.ErrFormat, h.Magic)
	}

	version, _ := r.U8()
	h.Version = Version(version)
	r.Skip(1) // reserved
	r.Skip(2) // reserved
	h.HeaderSize, _ = r.U32()
	h.EntryCount, _ = r.U32()
	h.CompressedBlockEntryCount, _ = r.U32()
	h.CompressedBlockEntrySize, _ = r.U32()
	h.CompressionMethodNameCount, _ = r.U32()
	h.CompressionMethodNameLength, _ = r.U32()
	h.CompressionBlockSize, _ = r.U32()
	h.DirectoryIndexSize, _ = r.U32()
	h.PartitionCount, _ = r.U32()
	h.ContainerID, _ = r.U64()
	guid, _ := r.Bytes(16)
	copy(h.EncryptionKeyGUID[:], guid)
	flags, _ := r.U8()
	h.ContainerFlags = ContainerFlags(flags)
	r.Skip(1) // reserved
	r.Skip(2) // reserved
	h.PerfectHashSeedsCount, _ = r.U32()
	h.PartitionSize, _ = r.U64()
	h.ChunksWithoutPerfectHashCount, _ = r.U32()
	r.Skip(4)  // reserved
	r.Skip(40) // reserved

	return h, nil
}
