package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/experius/pwa-buildpack/internal/host"
)

// EntryConfig is the entry section in whichever shape it was written: a
// single path, a list of paths, or a mapping of entry names to paths.
type EntryConfig struct {
	Kind  host.EntryKind
	Paths []string           // string and array shapes
	Named []host.NamedImport // object shape, in file order
}

// UnmarshalYAML records the shape along with the values.
func (e *EntryConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*e = EntryConfig{Kind: host.EntryString, Paths: []string{s}}
	case yaml.SequenceNode:
		var paths []string
		if err := node.Decode(&paths); err != nil {
			return err
		}
		*e = EntryConfig{Kind: host.EntryArray, Paths: paths}
	case yaml.MappingNode:
		named := make([]host.NamedImport, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var imp string
			if err := node.Content[i+1].Decode(&imp); err != nil {
				return fmt.Errorf("entry %q: %w", node.Content[i].Value, err)
			}
			named = append(named, host.NamedImport{Name: node.Content[i].Value, Import: imp})
		}
		*e = EntryConfig{Kind: host.EntryObject, Named: named}
	default:
		return fmt.Errorf("line %d: entry must be a path, a list of paths or a mapping", node.Line)
	}
	return nil
}

// MarshalYAML writes the entry back in its original shape.
func (e EntryConfig) MarshalYAML() (interface{}, error) {
	switch e.Kind {
	case host.EntryString:
		if len(e.Paths) == 0 {
			return "", nil
		}
		return e.Paths[0], nil
	case host.EntryArray:
		return e.Paths, nil
	default:
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, n := range e.Named {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: n.Name},
				&yaml.Node{Kind: yaml.ScalarNode, Value: n.Import})
		}
		return node, nil
	}
}

// Host converts the entry to its compiler form.
func (e EntryConfig) Host() host.Entry {
	switch e.Kind {
	case host.EntryString:
		var p string
		if len(e.Paths) > 0 {
			p = e.Paths[0]
		}
		return host.StringEntry(p)
	case host.EntryArray:
		return host.ArrayEntry(e.Paths...)
	default:
		return host.ObjectEntry(e.Named...)
	}
}

// Dirs returns the directories holding the entry modules, resolved against
// context. Watch mode uses them.
func (e EntryConfig) Dirs(context string) []string {
	var paths []string
	paths = append(paths, e.Paths...)
	for _, n := range e.Named {
		paths = append(paths, n.Import)
	}
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		d := dirOf(context, p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (e EntryConfig) validate() error {
	switch e.Kind {
	case host.EntryString, host.EntryArray:
		if len(e.Paths) == 0 || e.Paths[0] == "" {
			return fmt.Errorf("entry must name at least one module")
		}
	default:
		if len(e.Named) == 0 {
			return fmt.Errorf("entry must name at least one module")
		}
		for _, n := range e.Named {
			if n.Name == "" || n.Import == "" {
				return fmt.Errorf("entry %q: name and path are required", n.Name)
			}
		}
	}
	return nil
}

func dirOf(context, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(context, p)
	}
	return filepath.Dir(p)
}
