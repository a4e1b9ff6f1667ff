package pak

import (
	"fmt"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

// Magic identifies an archive footer.
const Magic uint32 = 0x5A6F12E1

// compressionNameSize is the fixed width of a codec name slot in the footer.
const compressionNameSize = 32

// Compression identifies a codec recorded in the footer's method table.
// CompressionNone marks an unused slot. Codecs are recognized and recorded
// only; this reader never decompresses payload data.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionGzip
	CompressionOodle
	CompressionZstd
	CompressionLZ4
)

// String returns the codec name as it appears on the wire.
func (c Compression) String() string {
	switch c {
	case CompressionZlib:
		return "Zlib"
	case CompressionGzip:
		return "Gzip"
	case CompressionOodle:
		return "Oodle"
	case CompressionZstd:
		return "Zstd"
	case CompressionLZ4:
		return "LZ4"
	default:
		return ""
	}
}

func compressionFromName(name string) Compression {
	switch name {
	case "Zlib":
		return CompressionZlib
	case "Gzip":
		return CompressionGzip
	case "Oodle":
		return CompressionOodle
	case "Zstd":
		return CompressionZstd
	case "LZ4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Footer is the decoded trailing footer of an archive.
type Footer struct {
	Magic        uint32
	Version      Version
	VersionMajor VersionMajor
	IndexOffset  uint64
	IndexSize    uint64
	Hash         [20]byte
	Encrypted    bool
	Frozen       bool

	// EncryptionGUID is only meaningful when HasEncryptionGUID is set;
	// earlier versions do not carry the field at all.
	EncryptionGUID    [16]byte
	HasEncryptionGUID bool

	// Compression is the ordered codec slot table. Unused slots hold
	// CompressionNone.
	Compression []Compression
}

// decodeFooter parses footer bytes under the capability set of the version
// being attempted. The buffer must be exactly the footer size for that
// version, taken from the end of the file.
func decodeFooter(data []byte, version Version) (*Footer, error) {
	caps := version.capabilities()
	r := serial.NewReader(data)
	footer := &Footer{Version: version, VersionMajor: version.Major()}

	var err error
	if caps.encryptionGUID {
		if footer.EncryptionGUID, err = r.GUID16(); err != nil {
			return nil, fmt.Errorf("failed to read encryption key GUID: %w", err)
		}
		footer.HasEncryptionGUID = true
	}
	if caps.encryptedFlag {
		if footer.Encrypted, err = r.Bool(); err != nil {
			return nil, fmt.Errorf("failed to read encrypted-index flag: %w", err)
		}
	}

	if footer.Magic, err = r.U32(); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if footer.Magic != Magic {
		return nil, fmt.Errorf("%w: invalid magic %08X (expected %08X)", serial.ErrFormat, footer.Magic, Magic)
	}

	major, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("failed to read version major: %w", err)
	}
	if VersionMajor(major) != footer.VersionMajor {
		return nil, fmt.Errorf("%w: version major %d does not match attempted major %d", serial.ErrFormat, major, footer.VersionMajor)
	}

	if footer.IndexOffset, err = r.U64(); err != nil {
		return nil, fmt.Errorf("failed to read index offset: %w", err)
	}
	if footer.IndexSize, err = r.U64(); err != nil {
		return nil, fmt.Errorf("failed to read index size: %w", err)
	}
	if footer.Hash, err = r.Hash20(); err != nil {
		return nil, fmt.Errorf("failed to read index hash: %w", err)
	}

	if caps.frozenFlag {
		if footer.Frozen, err = r.Bool(); err != nil {
			return nil, fmt.Errorf("failed to read frozen-index flag: %w", err)
		}
	}

	footer.Compression = make([]Compression, 0, caps.compressionSlots+3)
	for i := 0; i < caps.compressionSlots; i++ {
		raw, err := r.Bytes(compressionNameSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read compression name slot %d: %w", i, err)
		}
		footer.Compression = append(footer.Compression, compressionFromName(trimAtNul(raw)))
	}
	if caps.defaultMethods {
		// Versions predating named slots always used this fixed table.
		footer.Compression = append(footer.Compression, CompressionZlib, CompressionGzip, CompressionOodle)
	}

	return footer, nil
}

func trimAtNul(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
