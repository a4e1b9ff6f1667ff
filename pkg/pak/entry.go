package pak

import (
	"fmt"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

// Entry flag bits.
const (
	entryFlagEncrypted = 1 << 0
	entryFlagDeleted   = 1 << 1
)

// Block is one compressed byte range of an entry's payload. End is always
// greater than Start.
type Block struct {
	Start uint64
	End   uint64
}

// Entry is a single file record decoded from the index. Entries reached
// through the full directory index carry a path only; their numeric fields
// stay zero because the directory index records no payload metadata.
type Entry struct {
	Offset           uint64
	CompressedSize   uint64
	UncompressedSize uint64

	// CompressionSlot indexes the footer's codec table; absent means the
	// payload is stored uncompressed.
	CompressionSlot serial.OptionalU32

	// Timestamp is only present for the earliest format major.
	Timestamp    uint64
	HasTimestamp bool

	Hash [20]byte

	// Blocks is present only when a compression slot is set and the version
	// supports compression.
	Blocks []Block

	Flags                uint8
	CompressionBlockSize uint32
}

// IsEncrypted reports whether the entry's payload is encrypted.
func (e *Entry) IsEncrypted() bool { return e.Flags&entryFlagEncrypted != 0 }

// IsDeleted reports whether the entry is a deletion record.
func (e *Entry) IsDeleted() bool { return e.Flags&entryFlagDeleted != 0 }

// decodeEntry reads one entry record under the given capability set.
func decodeEntry(r *serial.Reader, caps capabilities) (Entry, error) {
	var entry Entry
	var err error

	if entry.Offset, err = r.U64(); err != nil {
		return entry, fmt.Errorf("failed to read entry offset: %w", err)
	}
	if entry.CompressedSize, err = r.U64(); err != nil {
		return entry, fmt.Errorf("failed to read entry compressed size: %w", err)
	}
	if entry.UncompressedSize, err = r.U64(); err != nil {
		return entry, fmt.Errorf("failed to read entry uncompressed size: %w", err)
	}

	// A raw slot of 0 means "no compression"; any other value N names the
	// footer's codec slot N-1.
	var rawSlot uint32
	if caps.slotAsByte {
		b, err := r.U8()
		if err != nil {
			return entry, fmt.Errorf("failed to read entry compression slot: %w", err)
		}
		rawSlot = uint32(b)
	} else {
		if rawSlot, err = r.U32(); err != nil {
			return entry, fmt.Errorf("failed to read entry compression slot: %w", err)
		}
	}
	if rawSlot != 0 {
		entry.CompressionSlot = serial.OptionalU32{Value: rawSlot - 1, Valid: true}
	}

	if caps.entryTimestamp {
		if entry.Timestamp, err = r.U64(); err != nil {
			return entry, fmt.Errorf("failed to read entry timestamp: %w", err)
		}
		entry.HasTimestamp = true
	}

	if entry.Hash, err = r.Hash20(); err != nil {
		return entry, fmt.Errorf("failed to read entry hash: %w", err)
	}

	if caps.compressionFields && entry.CompressionSlot.Valid {
		blockCount, err := r.U32()
		if err != nil {
			return entry, fmt.Errorf("failed to read entry block count: %w", err)
		}
		if err := r.Need(int(blockCount) * 16); err != nil {
			return entry, fmt.Errorf("entry block list of %d blocks: %w", blockCount, err)
		}
		entry.Blocks = make([]Block, blockCount)
		for i := range entry.Blocks {
			entry.Blocks[i].Start, _ = r.U64()
			entry.Blocks[i].End, _ = r.U64()
		}
	}

	if caps.compressionFields {
		if entry.Flags, err = r.U8(); err != nil {
			return entry, fmt.Errorf("failed to read entry flags: %w", err)
		}
		if entry.CompressionBlockSize, err = r.U32(); err != nil {
			return entry, fmt.Errorf("failed to read entry compression block size: %w", err)
		}
	}

	return entry, nil
}
