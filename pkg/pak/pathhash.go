package pak

import (
	"strings"
	"unicode/utf16"
)

const (
	fnv64OffsetBasis = 0xcbf29ce484222325
	fnv64Prime       = 0x00000100000001b3
)

// PathHash computes the hash the path-hash index is keyed by: FNV-1a over
// the UTF-16LE bytes of the lowercased path, with the index's seed added to
// the offset basis. The path-hash-index block itself is skipped during
// decoding; this lets consumers holding the block probe it by path.
func PathHash(path string, seed uint64) uint64 {
	hash := uint64(fnv64OffsetBasis) + seed
	for _, unit := range utf16.Encode([]rune(strings.ToLower(path))) {
		hash = (hash ^ uint64(unit&0xFF)) * fnv64Prime
		hash = (hash ^ uint64(unit>>8)) * fnv64Prime
	}
	return hash
}
