package pak

import "fmt"

// Version enumerates every known on-disk layout of the archive footer and
// index, including the two sub-versions of V8 that differ only in the
// number of compression-method slots.
type Version int

const (
	V0 Version = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8A
	V8B
	V9
	V10
	V11
)

// latestVersion is the newest layout probing starts from.
const latestVersion = V11

var versionNames = [...]string{"V0", "V1", "V2", "V3", "V4", "V5", "V6", "V7", "V8A", "V8B", "V9", "V10", "V11"}

func (v Version) String() string {
	if v >= 0 && int(v) < len(versionNames) {
		return versionNames[v]
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// VersionMajor is the major version number actually written to the footer.
// Both V8 sub-versions share one major.
type VersionMajor uint32

const (
	MajorUnknown               VersionMajor = iota // v0 unknown
	MajorInitial                                   // v1 initial layout
	MajorNoTimestamps                              // v2 timestamps removed
	MajorCompressionEncryption                     // v3 compression and encryption support
	MajorIndexEncryption                           // v4 index encryption support
	MajorRelativeChunkOffsets                      // v5 offsets relative to header
	MajorDeleteRecords                             // v6 record deletion support
	MajorEncryptionKeyGuid                         // v7 encryption key GUID included
	MajorFNameBasedCompression                     // v8 compression names included
	MajorFrozenIndex                               // v9 frozen index byte included
	MajorPathHashIndex                             // v10 hashed index structures
	MajorFnv64BugFix                               // v11 path hash bug fix
)

// Major returns the major version a given version layout writes to disk.
func (v Version) Major() VersionMajor {
	switch v {
	case V8A, V8B:
		return MajorFNameBasedCompression
	case V9:
		return MajorFrozenIndex
	case V10:
		return MajorPathHashIndex
	case V11:
		return MajorFnv64BugFix
	default:
		return VersionMajor(v)
	}
}

// capabilities describes which optional footer and entry fields a version
// layout includes. All decoding branches on this set; raw version numbers
// never appear in the decode logic itself.
type capabilities struct {
	encryptionGUID    bool // footer carries a 128-bit encryption key GUID
	encryptedFlag     bool // footer carries the encrypted-index boolean
	frozenFlag        bool // footer carries the frozen-index boolean
	compressionSlots  int  // fixed-width codec name slots in the footer
	slotAsByte        bool // entry compression slot is 1 byte instead of 4
	defaultMethods    bool // implicit Zlib/Gzip/Oodle table, no named slots
	entryTimestamp    bool // entries carry an 8-byte timestamp
	compressionFields bool // entries carry blocks, flags, and block size
	pathHashIndex     bool // index uses the hashed/full-directory structure
}

func (v Version) capabilities() capabilities {
	major := v.Major()
	slots := 0
	if v >= V8B {
		slots = 5
	} else if v >= V8A {
		slots = 4
	}
	return capabilities{
		encryptionGUID:    major >= MajorEncryptionKeyGuid,
		encryptedFlag:     major >= MajorIndexEncryption,
		frozenFlag:        major == MajorFrozenIndex,
		compressionSlots:  slots,
		slotAsByte:        v == V8A,
		defaultMethods:    major < MajorFNameBasedCompression,
		entryTimestamp:    major == MajorInitial,
		compressionFields: major >= MajorCompressionEncryption,
		pathHashIndex:     major >= MajorPathHashIndex,
	}
}

// footerSize returns the trailing footer length implied by the capability
// set: magic + version (4+4), index offset + size (8+8), 20-byte hash, plus
// every optional field the set includes.
func (c capabilities) footerSize() int64 {
	size := int64(4 + 4 + 8 + 8 + 20)
	if c.encryptionGUID {
		size += 16
	}
	if c.encryptedFlag {
		size++
	}
	if c.frozenFlag {
		size++
	}
	size += int64(c.compressionSlots) * compressionNameSize
	return size
}
