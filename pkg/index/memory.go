package index

import (
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var _ Index = (*MemoryIndex)(nil)

// node is the internal tree representation backing MemoryIndex. It mirrors
// the parent/children shape of the teacher's synchronization/core.Entry
// tree (a directory's Contents is a name-keyed map of child entries), pared
// down to what the monitor's Applier actually needs: size, modification
// time, and parent linkage for path-based lookup.
type node struct {
	entry    Entry
	children map[string]*node // nil for files
}

// MemoryIndex is a reference, in-memory Index implementation. It exists so
// that pkg/monitor can be tested without a real search-index backend; production use is expected to supply
// an Index backed by the actual indexed data store, per spec.md §1.
type MemoryIndex struct {
	mu   sync.Mutex
	root *node
	refs int32
}

// NewMemoryIndex creates an empty index rooted at root (an absolute path
// that is treated as already present, e.g. "/" or an indexed tree's root).
// The returned index starts with one reference.
func NewMemoryIndex(root string) *MemoryIndex {
	return &MemoryIndex{
		root: &node{
			entry:    Entry{Path: root, Kind: KindFolder},
			children: make(map[string]*node),
		},
		refs: 1,
	}
}

// Lock implements Index.Lock.
func (m *MemoryIndex) Lock() { m.mu.Lock() }

// Unlock implements Index.Unlock.
func (m *MemoryIndex) Unlock() { m.mu.Unlock() }

// Ref implements Index.Ref.
func (m *MemoryIndex) Ref() { atomic.AddInt32(&m.refs, 1) }

// Unref implements Index.Unref.
func (m *MemoryIndex) Unref() { atomic.AddInt32(&m.refs, -1) }

// RefCount returns the current reference count, primarily for tests.
func (m *MemoryIndex) RefCount() int32 { return atomic.LoadInt32(&m.refs) }

// find walks from the root to path, returning nil if any component is
// missing. It assumes the caller holds the lock.
func (m *MemoryIndex) find(p string) *node {
	if p == m.root.entry.Path {
		return m.root
	}
	rel, ok := relativeTo(m.root.entry.Path, p)
	if !ok {
		return nil
	}
	current := m.root
	for _, component := range splitPath(rel) {
		if current.children == nil {
			return nil
		}
		next, ok := current.children[component]
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// relativeTo reports the path of target relative to root, along with
// whether target actually falls under root.
func relativeTo(root, target string) (string, bool) {
	if root == "/" {
		return target[1:], true
	}
	if target == root {
		return "", true
	}
	if len(target) > len(root) && target[:len(root)] == root && target[len(root)] == '/' {
		return target[len(root)+1:], true
	}
	return "", false
}

// splitPath splits a relative path into its components, ignoring any empty
// leading/trailing components.
func splitPath(p string) []string {
	var components []string
	for _, c := range splitSlash(p) {
		if c != "" {
			components = append(components, c)
		}
	}
	return components
}

func splitSlash(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	out = append(out, p[start:])
	return out
}

// FindEntryByPath implements Index.FindEntryByPath.
func (m *MemoryIndex) FindEntryByPath(p string) *Entry {
	n := m.find(p)
	if n == nil {
		return nil
	}
	entry := n.entry
	return &entry
}

// FindFolderByPath implements Index.FindFolderByPath.
func (m *MemoryIndex) FindFolderByPath(p string) *Entry {
	n := m.find(p)
	if n == nil || n.entry.Kind != KindFolder {
		return nil
	}
	entry := n.entry
	return &entry
}

// EntryIsFolder implements Index.EntryIsFolder.
func (m *MemoryIndex) EntryIsFolder(entry *Entry) bool {
	return entry.IsFolder()
}

// AddFolder implements Index.AddFolder.
func (m *MemoryIndex) AddFolder(parentPath, name string, modTime time.Time) (*Entry, error) {
	parent := m.find(parentPath)
	if parent == nil || parent.entry.Kind != KindFolder {
		return nil, errors.Errorf("parent folder not found: %s", parentPath)
	}
	if _, exists := parent.children[name]; exists {
		return nil, errors.Errorf("entry already exists: %s", path.Join(parentPath, name))
	}
	child := &node{
		entry: Entry{
			Path:    path.Join(parentPath, name),
			Kind:    KindFolder,
			ModTime: modTime,
		},
		children: make(map[string]*node),
	}
	parent.children[name] = child
	entry := child.entry
	return &entry, nil
}

// AddFile implements Index.AddFile.
func (m *MemoryIndex) AddFile(parentPath, name string, size int64, modTime time.Time) error {
	parent := m.find(parentPath)
	if parent == nil || parent.entry.Kind != KindFolder {
		return errors.Errorf("parent folder not found: %s", parentPath)
	}
	if _, exists := parent.children[name]; exists {
		return errors.Errorf("entry already exists: %s", path.Join(parentPath, name))
	}
	parent.children[name] = &node{
		entry: Entry{
			Path:    path.Join(parentPath, name),
			Kind:    KindFile,
			Size:    size,
			ModTime: modTime,
		},
	}
	return nil
}

// RemoveFolder implements Index.RemoveFolder.
func (m *MemoryIndex) RemoveFolder(entry *Entry) error {
	return m.remove(entry)
}

// RemoveFile implements Index.RemoveFile.
func (m *MemoryIndex) RemoveFile(entry *Entry) error {
	return m.remove(entry)
}

// remove detaches the node at entry.Path from its parent.
func (m *MemoryIndex) remove(entry *Entry) error {
	if entry.Path == m.root.entry.Path {
		return errors.New("cannot remove the index root")
	}
	parentPath := path.Dir(entry.Path)
	name := path.Base(entry.Path)
	parent := m.find(parentPath)
	if parent == nil || parent.children == nil {
		return errors.Errorf("parent not found for: %s", entry.Path)
	}
	if _, ok := parent.children[name]; !ok {
		return errors.Errorf("entry not found: %s", entry.Path)
	}
	delete(parent.children, name)
	return nil
}

// UpdateFile implements Index.UpdateFile.
func (m *MemoryIndex) UpdateFile(entry *Entry, size int64, modTime time.Time) error {
	n := m.find(entry.Path)
	if n == nil || n.entry.Kind != KindFile {
		return errors.Errorf("file entry not found: %s", entry.Path)
	}
	n.entry.Size = size
	n.entry.ModTime = modTime
	return nil
}
