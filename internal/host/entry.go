package host

import (
	"fmt"
	"path/filepath"
)

// EntryPoint is a resolved named entry. Virtual entries carry their module
// source in memory and have no file on disk.
type EntryPoint struct {
	Name   string
	Import string // absolute module path, empty for virtual entries
	Source []byte // virtual module source
}

// Virtual reports whether the entry is an in-memory module.
func (e EntryPoint) Virtual() bool { return e.Source != nil }

// EntrySet is the ordered set of named entries a compilation starts from.
// BeforeEntryResolution taps may add to it; they may not remove user entries.
type EntrySet struct {
	entries []EntryPoint
	index   map[string]int
}

// NewEntrySet normalises the declared entry configuration. Shorthand forms
// become a single entry named "main"; relative paths resolve against context.
func NewEntrySet(context string, entry Entry) (*EntrySet, error) {
	s := &EntrySet{index: make(map[string]int)}
	switch entry.Kind {
	case EntryString, EntryArray:
		if len(entry.Paths) != 1 {
			return nil, fmt.Errorf("entry: %d modules under one name are not supported; declare named entries instead", len(entry.Paths))
		}
		if err := s.Add(DefaultEntryName, absPath(context, entry.Paths[0])); err != nil {
			return nil, err
		}
	case EntryObject:
		for _, n := range entry.Named {
			if err := s.Add(n.Name, absPath(context, n.Import)); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown entry kind %v", entry.Kind)
	}
	return s, nil
}

func absPath(context, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(context, p)
}

// Add appends a file-backed entry.
func (s *EntrySet) Add(name, importPath string) error {
	return s.add(EntryPoint{Name: name, Import: importPath})
}

// AddVirtual appends an in-memory entry module.
func (s *EntrySet) AddVirtual(name string, source []byte) error {
	if source == nil {
		source = []byte{}
	}
	return s.add(EntryPoint{Name: name, Source: source})
}

func (s *EntrySet) add(e EntryPoint) error {
	if e.Name == "" {
		return fmt.Errorf("entry name is required")
	}
	if _, ok := s.index[e.Name]; ok {
		return fmt.Errorf("entry %q already exists", e.Name)
	}
	s.index[e.Name] = len(s.entries)
	s.entries = append(s.entries, e)
	return nil
}

// Get returns the entry with the given name.
func (s *EntrySet) Get(name string) (EntryPoint, bool) {
	i, ok := s.index[name]
	if !ok {
		return EntryPoint{}, false
	}
	return s.entries[i], true
}

// All returns the entries in insertion order.
func (s *EntrySet) All() []EntryPoint {
	out := make([]EntryPoint, len(s.entries))
	copy(out, s.entries)
	return out
}

// Names returns the entry names in insertion order.
func (s *EntrySet) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

func (s *EntrySet) Len() int { return len(s.entries) }
