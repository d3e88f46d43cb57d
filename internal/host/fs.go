package host

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// OutputFS is where the emit stage writes assets.
type OutputFS interface {
	MkdirAll(dir string, perm fs.FileMode) error
	WriteFile(name string, data []byte, perm fs.FileMode) error
}

// DiskFS writes to the real filesystem.
type DiskFS struct{}

func (DiskFS) MkdirAll(dir string, perm fs.FileMode) error { return os.MkdirAll(dir, perm) }

func (DiskFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// MemoryFS keeps written files in memory, keyed by cleaned absolute path.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemoryFS returns an empty in-memory output filesystem.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (m *MemoryFS) MkdirAll(dir string, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		m.dirs[d] = true
		if filepath.Dir(d) == d {
			break
		}
	}
	return nil
}

func (m *MemoryFS) WriteFile(name string, data []byte, _ fs.FileMode) error {
	name = filepath.Clean(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[filepath.Dir(name)] {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrNotExist}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[name] = buf
	return nil
}

// ReadFile returns a written file's contents.
func (m *MemoryFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[filepath.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return data, nil
}

// Files returns the paths of every file below dir, relative to dir and
// slash-separated, in lexical order.
func (m *MemoryFS) Files(dir string) []string {
	dir = filepath.Clean(dir)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for p := range m.files {
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out
}
