// Package pak decodes the footer-anchored archive index format: a trailing
// footer located by trying version layouts from newest to oldest, followed
// by either a legacy flat entry list or the hashed index with its full
// directory index. The reader is metadata-only: payloads are never
// extracted, codecs never invoked, and encrypted indices rejected.
package pak

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/dirindex"
	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

// invalidEntryOffset is the reserved encoded offset marking an unused slot
// in the full directory index; files carrying it are skipped entirely.
const invalidEntryOffset = 0x80000000

// Reader is a fully decoded archive index. All structures are built during
// a single successful open and never mutated afterwards, so a Reader is safe
// for concurrent use.
type Reader struct {
	footer          *Footer
	mountPoint      string
	pathHashSeed    uint64
	hasPathHashSeed bool
	entries         map[string]Entry
	files           []string
}

// Open decodes the archive index at path. The file is only needed during
// the call; all metadata is held in memory afterwards.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pak: failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pak: failed to stat %s: %w", path, err)
	}
	return OpenFromReader(f, info.Size())
}

// OpenFromReader decodes an archive index from src, whose total length is
// size. Version layouts are attempted from newest to oldest; each failed
// attempt discards its partial state. Once a footer decodes, any error in
// the index itself is fatal for the call.
func OpenFromReader(src io.ReadSeeker, size int64) (*Reader, error) {
	var attempts []error
	for v := latestVersion; v >= V1; v-- {
		footer, err := readFooterAt(src, size, v)
		if err != nil {
			attempts = append(attempts, fmt.Errorf("%s: %w", v, err))
			continue
		}
		r := &Reader{footer: footer, entries: make(map[string]Entry)}
		if err := r.readIndex(src, size); err != nil {
			return nil, err
		}
		r.files = make([]string, 0, len(r.entries))
		for path := range r.entries {
			r.files = append(r.files, path)
		}
		sort.Strings(r.files)
		return r, nil
	}
	return nil, fmt.Errorf("pak: no known version layout matched: %w: %w", serial.ErrFormat, errors.Join(attempts...))
}

// readFooterAt reads and decodes the trailing footer under the layout of
// the given candidate version.
func readFooterAt(src io.ReadSeeker, size int64, version Version) (*Footer, error) {
	footerSize := version.capabilities().footerSize()
	if footerSize > size {
		return nil, fmt.Errorf("%w: file of %d bytes is smaller than the %d-byte footer", serial.ErrTruncated, size, footerSize)
	}
	if _, err := src.Seek(size-footerSize, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to footer: %w", err)
	}
	buf := make([]byte, footerSize)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("failed to read footer: %w", err)
	}
	return decodeFooter(buf, version)
}

func (r *Reader) readIndex(src io.ReadSeeker, size int64) error {
	if r.footer.Encrypted {
		return fmt.Errorf("pak: index is encrypted, decryption not supported: %w", serial.ErrUnsupported)
	}

	buf, err := readRegion(src, size, r.footer.IndexOffset, r.footer.IndexSize, "index")
	if err != nil {
		return err
	}
	idx := serial.NewReader(buf)

	if r.mountPoint, err = idx.String(); err != nil {
		return fmt.Errorf("pak: failed to read mount point: %w", err)
	}
	entryCount, err := idx.U32()
	if err != nil {
		return fmt.Errorf("pak: failed to read entry count: %w", err)
	}

	caps := r.footer.Version.capabilities()
	if caps.pathHashIndex {
		return r.readHashedIndex(idx, src, size)
	}
	return r.readLegacyIndex(idx, caps, entryCount)
}

// readLegacyIndex decodes the flat (path, entry) list of pre-hashed-index
// versions. Duplicate paths overwrite earlier entries.
func (r *Reader) readLegacyIndex(idx *serial.Reader, caps capabilities, entryCount uint32) error {
	for i := uint32(0); i < entryCount; i++ {
		path, err := idx.String()
		if err != nil {
			return fmt.Errorf("pak: failed to read path for entry %d: %w", i, err)
		}
		entry, err := decodeEntry(idx, caps)
		if err != nil {
			return fmt.Errorf("pak: failed to decode entry %d (%s): %w", i, path, err)
		}
		r.entries[path] = entry
	}
	return nil
}

// readHashedIndex decodes the hashed index structure: a path-hash seed, a
// skipped path-hash-index block, and the full directory index that supplies
// all file paths.
func (r *Reader) readHashedIndex(idx *serial.Reader, src io.ReadSeeker, size int64) error {
	seed, err := idx.U64()
	if err != nil {
		return fmt.Errorf("pak: failed to read path hash seed: %w", err)
	}
	r.pathHashSeed = seed
	r.hasPathHashSeed = true

	// The path-hash index maps hashes to entries and is not needed for
	// listing; only its location fields and trailing hash are consumed.
	hasPathHashIndex, err := idx.U32()
	if err != nil {
		return fmt.Errorf("pak: failed to read path-hash-index presence flag: %w", err)
	}
	if hasPathHashIndex != 0 {
		if _, err := idx.U64(); err != nil {
			return fmt.Errorf("pak: failed to read path-hash-index offset: %w", err)
		}
		if _, err := idx.U64(); err != nil {
			return fmt.Errorf("pak: failed to read path-hash-index size: %w", err)
		}
		if err := idx.Skip(20); err != nil {
			return fmt.Errorf("pak: failed to skip path-hash-index hash: %w", err)
		}
	}

	hasFullDirectoryIndex, err := idx.U32()
	if err != nil {
		return fmt.Errorf("pak: failed to read directory-index presence flag: %w", err)
	}
	if hasFullDirectoryIndex == 0 {
		return nil
	}

	dirOffset, err := idx.U64()
	if err != nil {
		return fmt.Errorf("pak: failed to read directory-index offset: %w", err)
	}
	dirSize, err := idx.U64()
	if err != nil {
		return fmt.Errorf("pak: failed to read directory-index size: %w", err)
	}
	if err := idx.Skip(20); err != nil {
		return fmt.Errorf("pak: failed to skip directory-index hash: %w", err)
	}

	region, err := readRegion(src, size, dirOffset, dirSize, "directory index")
	if err != nil {
		return err
	}
	return r.readFullDirectoryIndex(region)
}

// readFullDirectoryIndex parses the directory/file name map and feeds it
// through the shared directory-tree reconstructor. Entries from this branch
// carry a path only; the directory index records no payload metadata, so
// offset, sizes, and hash stay zero.
func (r *Reader) readFullDirectoryIndex(data []byte) error {
	idx := serial.NewReader(data)
	dirCount, err := idx.U32()
	if err != nil {
		return fmt.Errorf("pak: failed to read directory count: %w", err)
	}

	builder := newIndexTreeBuilder()
	for i := uint32(0); i < dirCount; i++ {
		dirName, err := idx.String()
		if err != nil {
			return fmt.Errorf("pak: failed to read name of directory %d: %w", i, err)
		}
		fileCount, err := idx.U32()
		if err != nil {
			return fmt.Errorf("pak: failed to read file count of directory %s: %w", dirName, err)
		}
		dir := builder.directory(dirName)
		for j := uint32(0); j < fileCount; j++ {
			fileName, err := idx.String()
			if err != nil {
				return fmt.Errorf("pak: failed to read name of file %d in %s: %w", j, dirName, err)
			}
			encodedOffset, err := idx.U32()
			if err != nil {
				return fmt.Errorf("pak: failed to read encoded offset of %s%s: %w", dirName, fileName, err)
			}
			if encodedOffset == invalidEntryOffset {
				continue
			}
			builder.addFile(dir, fileName, encodedOffset)
		}
	}

	paths, err := builder.resource.AllFilePaths()
	if err != nil {
		return fmt.Errorf("pak: failed to reconstruct directory index paths: %w", err)
	}
	for _, path := range paths {
		r.entries[path] = Entry{}
	}
	return nil
}

// readRegion bounds-checks and reads a declared (offset, size) byte region.
func readRegion(src io.ReadSeeker, fileSize int64, offset, size uint64, what string) ([]byte, error) {
	if offset > uint64(fileSize) || size > uint64(fileSize)-offset {
		return nil, fmt.Errorf("pak: %w: %s region (offset %d, size %d) exceeds file of %d bytes", serial.ErrTruncated, what, offset, size, fileSize)
	}
	if _, err := src.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("pak: failed to seek to %s: %w", what, err)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("pak: failed to read %s: %w", what, err)
	}
	return buf, nil
}

// Version returns the declared format version.
func (r *Reader) Version() Version { return r.footer.Version }

// MountPoint returns the root path prefix the archive's files are mounted
// under.
func (r *Reader) MountPoint() string { return r.mountPoint }

// EncryptedIndex reports whether the index itself is encrypted. A Reader
// only opens successfully with an unencrypted index, so this is false for
// every open Reader; the accessor mirrors the footer flag.
func (r *Reader) EncryptedIndex() bool { return r.footer.Encrypted }

// EncryptionGUID returns the 128-bit encryption key identifier and whether
// the footer version carries one.
func (r *Reader) EncryptionGUID() ([16]byte, bool) {
	return r.footer.EncryptionGUID, r.footer.HasEncryptionGUID
}

// Footer returns the decoded footer.
func (r *Reader) Footer() Footer { return *r.footer }

// CompressionMethods returns the footer's ordered codec slot table.
func (r *Reader) CompressionMethods() []Compression { return r.footer.Compression }

// PathHashSeed returns the index's path hash seed and whether the index
// carries one (hashed-index versions only).
func (r *Reader) PathHashSeed() (uint64, bool) { return r.pathHashSeed, r.hasPathHashSeed }

// Files returns every decoded file path, lexicographically sorted.
func (r *Reader) Files() []string { return r.files }

// Directories returns every unique ancestor directory of every file path,
// deduplicated and lexicographically sorted.
func (r *Reader) Directories() []string { return dirindex.ParentDirectories(r.files) }

// Entries returns the decoded entry records keyed by path.
func (r *Reader) Entries() map[string]Entry { return r.entries }

// Entry returns the entry record for a path.
func (r *Reader) Entry(path string) (Entry, bool) {
	entry, ok := r.entries[path]
	return entry, ok
}
