package pak

import (
	"strings"

	"github.com/mrowrpurr/MO2-Pak-support/pkg/dirindex"
	"github.com/mrowrpurr/MO2-Pak-support/pkg/serial"
)

// indexTreeBuilder assembles a dirindex.Resource from the full directory
// index's directory/file name map, so this format's path reconstruction
// runs through the same traversal as the chunk table-of-contents format.
// The mount point stays empty: listed paths never include it.
type indexTreeBuilder struct {
	resource  *dirindex.Resource
	stringIDs map[string]uint32
	children  map[uint32]map[string]uint32
	lastChild map[uint32]uint32
	lastFile  map[uint32]uint32
}

func newIndexTreeBuilder() *indexTreeBuilder {
	return &indexTreeBuilder{
		// Entry 0 is the unnamed root.
		resource:  &dirindex.Resource{DirectoryEntries: make([]dirindex.DirectoryEntry, 1)},
		stringIDs: make(map[string]uint32),
		children:  make(map[uint32]map[string]uint32),
		lastChild: make(map[uint32]uint32),
		lastFile:  make(map[uint32]uint32),
	}
}

func (b *indexTreeBuilder) intern(s string) uint32 {
	if id, ok := b.stringIDs[s]; ok {
		return id
	}
	id := uint32(len(b.resource.StringTable))
	b.resource.StringTable = append(b.resource.StringTable, s)
	b.stringIDs[s] = id
	return id
}

// directory resolves a directory path such as "a/b/" or "/" to its node
// index, creating intermediate nodes in encounter order as needed.
func (b *indexTreeBuilder) directory(path string) uint32 {
	current := uint32(0)
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		if child, ok := b.children[current][component]; ok {
			current = child
			continue
		}
		child := uint32(len(b.resource.DirectoryEntries))
		b.resource.DirectoryEntries = append(b.resource.DirectoryEntries, dirindex.DirectoryEntry{
			Name: serial.OptionalU32{Value: b.intern(component), Valid: true},
		})
		if last, ok := b.lastChild[current]; ok {
			b.resource.DirectoryEntries[last].NextSiblingEntry = serial.OptionalU32{Value: child, Valid: true}
		} else {
			b.resource.DirectoryEntries[current].FirstChildEntry = serial.OptionalU32{Value: child, Valid: true}
		}
		b.lastChild[current] = child
		if b.children[current] == nil {
			b.children[current] = make(map[string]uint32)
		}
		b.children[current][component] = child
		current = child
	}
	return current
}

func (b *indexTreeBuilder) addFile(dir uint32, name string, userData uint32) {
	file := uint32(len(b.resource.FileEntries))
	b.resource.FileEntries = append(b.resource.FileEntries, dirindex.FileEntry{
		Name:     b.intern(name),
		UserData: userData,
	})
	if last, ok := b.lastFile[dir]; ok {
		b.resource.FileEntries[last].NextFileEntry = serial.OptionalU32{Value: file, Valid: true}
	} else {
		b.resource.DirectoryEntries[dir].FirstFileEntry = serial.OptionalU32{Value: file, Valid: true}
	}
	b.lastFile[dir] = file
}
