// Package dirindex decodes the directory-index structure shared by both
// archive formats: flat directory and file node arrays linked by
// child/sibling/next indices plus a string table, reconstructed into full
// file paths by depth-first traversal. The pak reader instantiates it for
// the full-directory-index branch and the utoc reader for the container's
// directory index.
package dirindex

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

// DirectoryEntry is one node of the flat directory array. Absent fields are
// encoded on the wire as the all-bits-set sentinel and decoded to invalid
// optionals here.
type DirectoryEntry struct {
	Name             serial.OptionalU32 // index into the string table
	FirstChildEntry  serial.OptionalU32 // index into the directory array
	NextSiblingEntry serial.OptionalU32 // index into the directory array
	FirstFileEntry   serial.OptionalU32 // index into the file array
}

// FileEntry is one node of the flat file array. UserData is an opaque
// payload reference: an encoded entry offset for pak, a chunk index for
// utoc.
type FileEntry struct {
	Name          uint32 // index into the string table
	NextFileEntry serial.OptionalU32
	UserData      uint32
}

// Resource is a fully decoded directory index.
type Resource struct {
	MountPoint       string
	DirectoryEntries []DirectoryEntry
	FileEntries      []FileEntry
	StringTable      []string
}

const (
	directoryEntrySize = 16 // four 4-byte optional fields
	fileEntrySize      = 12 // name + optional next + user data
)

// Parse decodes a directory index region: mount point, directory array,
// file array, string table, in that order.
func Parse(data []byte) (*Resource, error) {
	r := serial.NewReader(data)
	res := &Resource{}

	var err error
	if res.MountPoint, err = r.String(); err != nil {
		return nil, fmt.Errorf("failed to read directory index mount point: %w", err)
	}

	dirCount, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("failed to read directory entry count: %w", err)
	}
	if err := r.Need(int(dirCount) * directoryEntrySize); err != nil {
		return nil, fmt.Errorf("directory entry table of %d entries: %w", dirCount, err)
	}
	res.DirectoryEntries = make([]DirectoryEntry, dirCount)
	for i := range res.DirectoryEntries {
		e := &res.DirectoryEntries[i]
		e.Name, _ = r.OptionalU32()
		e.FirstChildEntry, _ = r.OptionalU32()
		e.NextSiblingEntry, _ = r.OptionalU32()
		e.FirstFileEntry, _ = r.OptionalU32()
	}

	fileCount, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("failed to read file entry count: %w", err)
	}
	if err := r.Need(int(fileCount) * fileEntrySize); err != nil {
		return nil, fmt.Errorf("file entry table of %d entries: %w", fileCount, err)
	}
	res.FileEntries = make([]FileEntry, fileCount)
	for i := range res.FileEntries {
		e := &res.FileEntries[i]
		e.Name, _ = r.U32()
		e.NextFileEntry, _ = r.OptionalU32()
		e.UserData, _ = r.U32()
	}

	stringCount, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("failed to read string table count: %w", err)
	}
	// Every string carries at least its 4-byte length prefix.
	if err := r.Need(int(stringCount) * 4); err != nil {
		return nil, fmt.Errorf("string table of %d entries: %w", stringCount, err)
	}
	res.StringTable = make([]string, stringCount)
	for i := range res.StringTable {
		if res.StringTable[i], err = r.String(); err != nil {
			return nil, fmt.Errorf("failed to read string table entry %d: %w", i, err)
		}
	}

	return res, nil
}

// AllFilePaths reconstructs every full file path by depth-first, pre-order
// traversal from directory entry 0: a directory's own file chain is emitted
// before its child directories, and output order is traversal order. The
// result is derived from the decoded arrays alone and is deterministic.
func (res *Resource) AllFilePaths() ([]string, error) {
	if len(res.DirectoryEntries) == 0 {
		return nil, nil
	}
	var (
		result       []string
		segments     []string
		visitedDirs  = make([]bool, len(res.DirectoryEntries))
		visitedFiles = make([]bool, len(res.FileEntries))
	)

	var walk func(dirIndex uint32) error
	walk = func(dirIndex uint32) error {
		if int(dirIndex) >= len(res.DirectoryEntries) {
			return fmt.Errorf("%w: directory index %d out of range (%d entries)", serial.ErrFormat, dirIndex, len(res.DirectoryEntries))
		}
		if visitedDirs[dirIndex] {
			return fmt.Errorf("%w: directory index %d forms a cycle", serial.ErrFormat, dirIndex)
		}
		visitedDirs[dirIndex] = true
		dir := &res.DirectoryEntries[dirIndex]

		if dir.Name.Valid {
			name, err := res.lookupString(dir.Name.Value)
			if err != nil {
				return err
			}
			segments = append(segments, name)
		}

		for file := dir.FirstFileEntry; file.Valid; {
			if int(file.Value) >= len(res.FileEntries) {
				return fmt.Errorf("%w: file index %d out of range (%d entries)", serial.ErrFormat, file.Value, len(res.FileEntries))
			}
			if visitedFiles[file.Value] {
				return fmt.Errorf("%w: file index %d forms a cycle", serial.ErrFormat, file.Value)
			}
			visitedFiles[file.Value] = true
			entry := &res.FileEntries[file.Value]
			name, err := res.lookupString(entry.Name)
			if err != nil {
				return err
			}
			result = append(result, joinPath(res.MountPoint, segments, name))
			file = entry.NextFileEntry
		}

		for child := dir.FirstChildEntry; child.Valid; {
			if err := walk(child.Value); err != nil {
				return err
			}
			child = res.DirectoryEntries[child.Value].NextSiblingEntry
		}

		if dir.Name.Valid {
			segments = segments[:len(segments)-1]
		}
		return nil
	}

	if err := walk(0); err != nil {
		return nil, err
	}
	return result, nil
}

func (res *Resource) lookupString(index uint32) (string, error) {
	if int(index) >= len(res.StringTable) {
		return "", fmt.Errorf("%w: string table index %d out of range (%d strings)", serial.ErrFormat, index, len(res.StringTable))
	}
	return res.StringTable[index], nil
}

func joinPath(mountPoint string, segments []string, fileName string) string {
	var sb strings.Builder
	sb.WriteString(mountPoint)
	for _, segment := range segments {
		appendSegment(&sb, segment)
	}
	appendSegment(&sb, fileName)
	return sb.String()
}

func appendSegment(sb *strings.Builder, segment string) {
	if s := sb.String(); s != "" && s[len(s)-1] != '/' {
		sb.WriteByte('/')
	}
	sb.WriteString(segment)
}

// ParentDirectories returns every unique ancestor directory of the given
// file paths, deduplicated and sorted lexicographically. Paths without a
// separator contribute nothing.
func ParentDirectories(paths []string) []string {
	seen := make(map[string]struct{})
	for _, path := range paths {
		for {
			slash := strings.LastIndexByte(path, '/')
			if slash <= 0 {
				break
			}
			path = path[:slash]
			if _, ok := seen[path]; ok {
				break
			}
			seen[path] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for dir := range seen {
		result = append(result, dir)
	}
	sort.Strings(result)
	return result
}
