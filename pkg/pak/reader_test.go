package pak

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

func writeU32(buf *bytes.Buffer, v uint32) { binary.Write(buf, binary.LittleEndian, v) }
func writeU64(buf *bytes.Buffer, v uint64) { binary.Write(buf, binary.LittleEndian, v) }

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, int32(len(s)+1))
	buf.WriteString(s)
	buf.WriteByte(0)
}

// writeFooter serializes a footer under the layout of the given version.
func writeFooter(buf *bytes.Buffer, v Version, f Footer, slotNames []string) {
	caps := v.capabilities()
	if caps.encryptionGUID {
		buf.Write(f.EncryptionGUID[:])
	}
	if caps.encryptedFlag {
		writeBool(buf, f.Encrypted)
	}
	writeU32(buf, Magic)
	writeU32(buf, uint32(v.Major()))
	writeU64(buf, f.IndexOffset)
	writeU64(buf, f.IndexSize)
	buf.Write(f.Hash[:])
	if caps.frozenFlag {
		writeBool(buf, f.Frozen)
	}
	for i := 0; i < caps.compressionSlots; i++ {
		var slot [compressionNameSize]byte
		if i < len(slotNames) {
			copy(slot[:], slotNames[i])
		}
		buf.Write(slot[:])
	}
}

// writeEntry serializes an entry record under the layout of the given
// version.
func writeEntry(buf *bytes.Buffer, v Version, e Entry) {
	caps := v.capabilities()
	writeU64(buf, e.Offset)
	writeU64(buf, e.CompressedSize)
	writeU64(buf, e.UncompressedSize)
	rawSlot := uint32(0)
	if e.CompressionSlot.Valid {
		rawSlot = e.CompressionSlot.Value + 1
	}
	if caps.slotAsByte {
		buf.WriteByte(byte(rawSlot))
	} else {
		writeU32(buf, rawSlot)
	}
	if caps.entryTimestamp {
		writeU64(buf, e.Timestamp)
	}
	buf.Write(e.Hash[:])
	if caps.compressionFields && e.CompressionSlot.Valid {
		writeU32(buf, uint32(len(e.Blocks)))
		for _, b := range e.Blocks {
			writeU64(buf, b.Start)
			writeU64(buf, b.End)
		}
	}
	if caps.compressionFields {
		buf.WriteByte(e.Flags)
		writeU32(buf, e.CompressionBlockSize)
	}
}

type testFile struct {
	path  string
	entry Entry
}

// buildLegacyArchive assembles payload padding, a flat index, and a footer
// into a complete archive image.
func buildLegacyArchive(v Version, mountPoint string, files []testFile, slotNames []string, footer Footer) []byte {
	var index bytes.Buffer
	writeString(&index, mountPoint)
	writeU32(&index, uint32(len(files)))
	for _, f := range files {
		writeString(&index, f.path)
		writeEntry(&index, v, f.entry)
	}

	var archive bytes.Buffer
	archive.WriteString("payloadpayload") // stand-in for file data
	footer.IndexOffset = uint64(archive.Len())
	footer.IndexSize = uint64(index.Len())
	archive.Write(index.Bytes())
	writeFooter(&archive, v, footer, slotNames)
	return archive.Bytes()
}

func openArchive(t *testing.T, data []byte) *Reader {
	t.Helper()
	r, err := OpenFromReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenFromReader failed: %v", err)
	}
	return r
}

func TestOpen_LegacyV7(t *testing.T) {
	compressed := Entry{
		Offset:               100,
		CompressedSize:       50,
		UncompressedSize:     200,
		CompressionSlot:      serial.OptionalU32{Value: 0, Valid: true},
		Blocks:               []Block{{Start: 100, End: 150}},
		Flags:                entryFlagEncrypted,
		CompressionBlockSize: 65536,
	}
	plain := Entry{Offset: 300, CompressedSize: 20, UncompressedSize: 20}
	guid := [16]byte{1, 2, 3, 4}

	data := buildLegacyArchive(V7, "../../../", []testFile{
		{"sub/dir/file.bin", compressed},
		{"top.txt", plain},
	}, nil, Footer{EncryptionGUID: guid})

	r := openArchive(t, data)
	if r.Version() != V7 {
		t.Errorf("Expected version V7, got %s", r.Version())
	}
	if r.MountPoint() != "../../../" {
		t.Errorf("Unexpected mount point '%s'", r.MountPoint())
	}
	if r.EncryptedIndex() {
		t.Errorf("Index must not be encrypted")
	}
	gotGUID, ok := r.EncryptionGUID()
	if !ok || gotGUID != guid {
		t.Errorf("Expected encryption GUID %v, got %v (present=%v)", guid, gotGUID, ok)
	}

	wantFiles := []string{"sub/dir/file.bin", "top.txt"}
	if !reflect.DeepEqual(r.Files(), wantFiles) {
		t.Errorf("Expected files %v, got %v", wantFiles, r.Files())
	}
	wantDirs := []string{"sub", "sub/dir"}
	if !reflect.DeepEqual(r.Directories(), wantDirs) {
		t.Errorf("Expected directories %v, got %v", wantDirs, r.Directories())
	}

	got, ok := r.Entry("sub/dir/file.bin")
	if !ok {
		t.Fatalf("Entry lookup failed")
	}
	if !reflect.DeepEqual(got, compressed) {
		t.Errorf("Entry mismatch:\n got %+v\nwant %+v", got, compressed)
	}
	if !got.IsEncrypted() || got.IsDeleted() {
		t.Errorf("Expected encrypted, non-deleted entry flags, got %08b", got.Flags)
	}
	// Pre-named-compression versions carry the implicit codec table.
	wantCodecs := []Compression{CompressionZlib, CompressionGzip, CompressionOodle}
	if !reflect.DeepEqual(r.CompressionMethods(), wantCodecs) {
		t.Errorf("Expected codec table %v, got %v", wantCodecs, r.CompressionMethods())
	}
}

func TestOpen_V1_Timestamp(t *testing.T) {
	entry := Entry{Offset: 10, CompressedSize: 5, UncompressedSize: 5, Timestamp: 0x1122334455667788, HasTimestamp: true}
	data := buildLegacyArchive(V1, "mount/", []testFile{{"old.dat", entry}}, nil, Footer{})

	r := openArchive(t, data)
	if r.Version() != V1 {
		t.Errorf("Expected version V1, got %s", r.Version())
	}
	got, ok := r.Entry("old.dat")
	if !ok {
		t.Fatalf("Entry lookup failed")
	}
	if !got.HasTimestamp || got.Timestamp != 0x1122334455667788 {
		t.Errorf("Expected timestamp 0x1122334455667788, got %X (present=%v)", got.Timestamp, got.HasTimestamp)
	}
	if _, ok := r.EncryptionGUID(); ok {
		t.Errorf("V1 footers carry no encryption GUID")
	}
}

func TestOpen_V8A_ByteCompressionSlot(t *testing.T) {
	entry := Entry{
		Offset:           0,
		CompressedSize:   10,
		UncompressedSize: 40,
		CompressionSlot:  serial.OptionalU32{Value: 0, Valid: true},
		Blocks:           []Block{{Start: 0, End: 10}},
	}
	data := buildLegacyArchive(V8A, "m/", []testFile{{"f", entry}}, []string{"Zlib", "LZ4"}, Footer{})

	r := openArchive(t, data)
	if r.Version() != V8A {
		t.Errorf("Expected version V8A, got %s", r.Version())
	}
	methods := r.CompressionMethods()
	if len(methods) != 4 {
		t.Fatalf("Expected 4 codec slots for V8A, got %d", len(methods))
	}
	if methods[0] != CompressionZlib || methods[1] != CompressionLZ4 || methods[2] != CompressionNone {
		t.Errorf("Unexpected codec table %v", methods)
	}
	got, _ := r.Entry("f")
	if !got.CompressionSlot.Valid || got.CompressionSlot.Value != 0 {
		t.Errorf("Expected compression slot 0, got %+v", got.CompressionSlot)
	}
}

func TestOpen_V8B_FiveSlots(t *testing.T) {
	data := buildLegacyArchive(V8B, "m/", nil, []string{"Oodle", "Zstd", "Gzip", "", "LZ4"}, Footer{})
	r := openArchive(t, data)
	if r.Version() != V8B {
		t.Errorf("Expected version V8B, got %s", r.Version())
	}
	want := []Compression{CompressionOodle, CompressionZstd, CompressionGzip, CompressionNone, CompressionLZ4}
	if !reflect.DeepEqual(r.CompressionMethods(), want) {
		t.Errorf("Expected codec table %v, got %v", want, r.CompressionMethods())
	}
}

func TestOpen_V9_FrozenFlag(t *testing.T) {
	data := buildLegacyArchive(V9, "m/", nil, nil, Footer{Frozen: true})
	r := openArchive(t, data)
	if r.Version() != V9 {
		t.Errorf("Expected version V9, got %s", r.Version())
	}
	if !r.Footer().Frozen {
		t.Errorf("Expected frozen-index flag to survive decoding")
	}
}

func TestOpen_ProbingSelectsExactVersion(t *testing.T) {
	// V4 and V5 footers are the same size; only the version-major field
	// separates them. Probing tries V5 first and must reject it.
	data := buildLegacyArchive(V5, "m/", []testFile{{"f", Entry{}}}, nil, Footer{})
	r := openArchive(t, data)
	if r.Version() != V5 {
		t.Errorf("Expected probing to select V5, got %s", r.Version())
	}

	data = buildLegacyArchive(V4, "m/", []testFile{{"f", Entry{}}}, nil, Footer{})
	r = openArchive(t, data)
	if r.Version() != V4 {
		t.Errorf("Expected probing to select V4, got %s", r.Version())
	}
}

func TestOpen_CorruptMagic(t *testing.T) {
	data := buildLegacyArchive(V2, "m/", []testFile{{"f", Entry{}}}, nil, Footer{})
	// The magic sits at the start of the 44-byte V2 footer.
	copy(data[len(data)-44:], []byte{0xDE, 0xAD})
	_, err := OpenFromReader(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		t.Fatalf("Expected corrupted magic to fail")
	}
	if !errors.Is(err, serial.ErrFormat) {
		t.Errorf("Expected aggregated ErrFormat after exhausting versions, got %v", err)
	}
}

func TestOpen_Garbage(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 512)
	_, err := OpenFromReader(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, serial.ErrFormat) {
		t.Errorf("Expected ErrFormat for garbage input, got %v", err)
	}
}

func TestOpen_EncryptedIndex(t *testing.T) {
	data := buildLegacyArchive(V4, "m/", nil, nil, Footer{Encrypted: true})
	_, err := OpenFromReader(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, serial.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for an encrypted index, got %v", err)
	}
}

func TestOpen_TruncatedIndex(t *testing.T) {
	var archive bytes.Buffer
	writeFooter(&archive, V2, Footer{IndexOffset: 0, IndexSize: 1 << 20}, nil)
	data := archive.Bytes()
	_, err := OpenFromReader(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, serial.ErrTruncated) {
		t.Errorf("Expected ErrTruncated for an index past end of file, got %v", err)
	}
}

func TestOpen_DeletedEntry(t *testing.T) {
	deleted := Entry{Offset: 5, Flags: entryFlagDeleted}
	data := buildLegacyArchive(V6, "m/", []testFile{{"gone.dat", deleted}}, nil, Footer{})

	r := openArchive(t, data)
	got, ok := r.Entry("gone.dat")
	if !ok {
		t.Fatalf("Entry lookup failed")
	}
	if !got.IsDeleted() || got.IsEncrypted() {
		t.Errorf("Expected a deleted, unencrypted entry, got flags %08b", got.Flags)
	}
}

func TestOpen_DuplicatePathLastWins(t *testing.T) {
	first := Entry{Offset: 1, CompressedSize: 1, UncompressedSize: 1}
	second := Entry{Offset: 2, CompressedSize: 2, UncompressedSize: 2}
	data := buildLegacyArchive(V2, "m/", []testFile{{"dup", first}, {"dup", second}}, nil, Footer{})

	r := openArchive(t, data)
	if len(r.Files()) != 1 {
		t.Fatalf("Expected 1 file after duplicate overwrite, got %d", len(r.Files()))
	}
	got, _ := r.Entry("dup")
	if got.Offset != 2 {
		t.Errorf("Expected the later entry to win, got offset %d", got.Offset)
	}
}

// buildHashedArchive assembles a directory-index region, the hashed index,
// and a footer into a complete archive image for V10+.
func buildHashedArchive(v Version, mountPoint string, seed uint64, withPathHashIndex bool, dirs map[string][]struct {
	name   string
	offset uint32
}, dirOrder []string) []byte {
	var dirRegion bytes.Buffer
	writeU32(&dirRegion, uint32(len(dirOrder)))
	for _, dirName := range dirOrder {
		writeString(&dirRegion, dirName)
		files := dirs[dirName]
		writeU32(&dirRegion, uint32(len(files)))
		for _, f := range files {
			writeString(&dirRegion, f.name)
			writeU32(&dirRegion, f.offset)
		}
	}

	var index bytes.Buffer
	writeString(&index, mountPoint)
	writeU32(&index, 0) // entry count, unused by this branch
	writeU64(&index, seed)
	if withPathHashIndex {
		writeU32(&index, 1)
		writeU64(&index, 0xABCD)      // path-hash-index offset, skipped
		writeU64(&index, 0x1234)      // path-hash-index size, skipped
		index.Write(make([]byte, 20)) // path-hash-index hash, skipped
	} else {
		writeU32(&index, 0)
	}
	writeU32(&index, 1) // full directory index present
	writeU64(&index, 0) // directory index at file offset 0
	writeU64(&index, uint64(dirRegion.Len()))
	index.Write(make([]byte, 20)) // directory index hash, skipped

	var archive bytes.Buffer
	archive.Write(dirRegion.Bytes())
	footer := Footer{IndexOffset: uint64(archive.Len()), IndexSize: uint64(index.Len())}
	archive.Write(index.Bytes())
	writeFooter(&archive, v, footer, nil)
	return archive.Bytes()
}

func TestOpen_HashedIndex(t *testing.T) {
	dirs := map[string][]struct {
		name   string
		offset uint32
	}{
		"/":    {{"root.txt", 3}},
		"a/b/": {{"c.bin", 5}, {"dead.bin", invalidEntryOffset}},
	}
	data := buildHashedArchive(V11, "../../../", 0xFEED, false, dirs, []string{"/", "a/b/"})

	r := openArchive(t, data)
	if r.Version() != V11 {
		t.Errorf("Expected version V11, got %s", r.Version())
	}
	seed, ok := r.PathHashSeed()
	if !ok || seed != 0xFEED {
		t.Errorf("Expected path hash seed 0xFEED, got %X (present=%v)", seed, ok)
	}

	// dead.bin carries the reserved invalid offset and must be skipped.
	wantFiles := []string{"a/b/c.bin", "root.txt"}
	if !reflect.DeepEqual(r.Files(), wantFiles) {
		t.Errorf("Expected files %v, got %v", wantFiles, r.Files())
	}
	wantDirs := []string{"a", "a/b"}
	if !reflect.DeepEqual(r.Directories(), wantDirs) {
		t.Errorf("Expected directories %v, got %v", wantDirs, r.Directories())
	}

	// Directory-index entries carry a path only.
	got, ok := r.Entry("a/b/c.bin")
	if !ok {
		t.Fatalf("Entry lookup failed")
	}
	if !reflect.DeepEqual(got, Entry{}) {
		t.Errorf("Directory-index entries must be zero placeholders, got %+v", got)
	}
}

func TestOpen_HashedIndex_SkipsPathHashIndexBlock(t *testing.T) {
	// With the path-hash-index presence flag set, its offset, size, and hash
	// fields must be consumed exactly or the directory index that follows
	// decodes misaligned.
	dirs := map[string][]struct {
		name   string
		offset uint32
	}{
		"a/": {{"f.bin", 1}},
	}
	data := buildHashedArchive(V11, "m/", 0xBEEF, true, dirs, []string{"a/"})

	r := openArchive(t, data)
	seed, ok := r.PathHashSeed()
	if !ok || seed != 0xBEEF {
		t.Errorf("Expected path hash seed 0xBEEF, got %X (present=%v)", seed, ok)
	}
	wantFiles := []string{"a/f.bin"}
	if !reflect.DeepEqual(r.Files(), wantFiles) {
		t.Errorf("Expected files %v, got %v", wantFiles, r.Files())
	}
}

func TestOpen_HashedIndex_NoDirectoryIndex(t *testing.T) {
	var index bytes.Buffer
	writeString(&index, "m/")
	writeU32(&index, 0)
	writeU64(&index, 1) // seed
	writeU32(&index, 0) // no path-hash index
	writeU32(&index, 0) // no full directory index

	var archive bytes.Buffer
	footer := Footer{IndexOffset: 0, IndexSize: uint64(index.Len())}
	archive.Write(index.Bytes())
	writeFooter(&archive, V10, footer, nil)

	r := openArchive(t, archive.Bytes())
	if r.Version() != V10 {
		t.Errorf("Expected version V10, got %s", r.Version())
	}
	if len(r.Files()) != 0 {
		t.Errorf("Expected no files without a directory index, got %v", r.Files())
	}
}

func TestOpen_FromFile(t *testing.T) {
	data := buildLegacyArchive(V7, "m/", []testFile{{"f.txt", Entry{Offset: 1}}}, nil, Footer{})
	path := filepath.Join(t.TempDir(), "test.pak")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write temp archive: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(r.Files()) != 1 || r.Files()[0] != "f.txt" {
		t.Errorf("Unexpected files %v", r.Files())
	}
}
