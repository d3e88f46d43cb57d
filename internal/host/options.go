// Package host defines the contract between build plugins and the bundler
// that runs them: build options, the mutable entry set, lifecycle hooks, and
// the compilation (chunks and assets) that plugins inspect and amend.
//
// Lifecycle order for one compilation:
//
//	BeforeEntryResolution -> bundle -> AfterChunksFinalized -> BeforeAssetEmit -> write -> Done
//
// A concrete bundler lives in a sub-package (see esbuildhost); plugins only
// depend on this package.
package host

import (
	"fmt"
	"path/filepath"
	"strings"
)

// EntryKind records which shape the user wrote the entry configuration in.
type EntryKind int

const (
	EntryString EntryKind = iota // entry: ./src/index.js
	EntryArray                   // entry: [./a.js, ./b.js]
	EntryObject                  // entry: {main: ./src/index.js}
)

func (k EntryKind) String() string {
	switch k {
	case EntryString:
		return "string"
	case EntryArray:
		return "array"
	case EntryObject:
		return "object"
	}
	return fmt.Sprintf("EntryKind(%d)", int(k))
}

// DefaultEntryName is used for string and array shorthand entries.
const DefaultEntryName = "main"

// NamedImport is one entry of the object form.
type NamedImport struct {
	Name   string
	Import string
}

// Entry is the entry configuration exactly as the user declared it.
type Entry struct {
	Kind  EntryKind
	Paths []string      // string and array forms
	Named []NamedImport // object form, in declaration order
}

// StringEntry returns the single-module shorthand.
func StringEntry(path string) Entry {
	return Entry{Kind: EntryString, Paths: []string{path}}
}

// ArrayEntry returns the module-list shorthand.
func ArrayEntry(paths ...string) Entry {
	return Entry{Kind: EntryArray, Paths: paths}
}

// ObjectEntry returns the named form. Pairs keep the given order.
func ObjectEntry(pairs ...NamedImport) Entry {
	return Entry{Kind: EntryObject, Named: pairs}
}

// Output configures where and how output files are named.
type Output struct {
	Path          string // absolute output directory
	Filename      string // template for named entry chunks, e.g. "[name].js"
	ChunkFilename string // template for on-demand and shared chunks
}

// Options is the subset of build configuration plugins can see.
type Options struct {
	Context string // absolute project root; relative imports resolve from here
	Entry   Entry
	Output  Output
}

// Validate checks the options a bundler needs before running.
func (o *Options) Validate() error {
	if o.Context == "" || !filepath.IsAbs(o.Context) {
		return fmt.Errorf("context must be an absolute path, got %q", o.Context)
	}
	if o.Output.Path == "" || !filepath.IsAbs(o.Output.Path) {
		return fmt.Errorf("output.path must be an absolute path, got %q", o.Output.Path)
	}
	if o.Output.Filename == "" {
		o.Output.Filename = "[name].js"
	}
	if o.Output.ChunkFilename == "" {
		o.Output.ChunkFilename = "[id].js"
	}
	for _, tmpl := range []string{o.Output.Filename, o.Output.ChunkFilename} {
		if err := ValidateTemplate(tmpl); err != nil {
			return err
		}
	}
	switch o.Entry.Kind {
	case EntryString, EntryArray:
		if len(o.Entry.Paths) == 0 {
			return fmt.Errorf("entry must name at least one module")
		}
	case EntryObject:
		if len(o.Entry.Named) == 0 {
			return fmt.Errorf("entry must name at least one module")
		}
		seen := make(map[string]bool, len(o.Entry.Named))
		for _, n := range o.Entry.Named {
			if strings.TrimSpace(n.Name) == "" || n.Import == "" {
				return fmt.Errorf("entry %q: name and module path are required", n.Name)
			}
			if seen[n.Name] {
				return fmt.Errorf("entry %q declared twice", n.Name)
			}
			seen[n.Name] = true
		}
	default:
		return fmt.Errorf("unknown entry kind %v", o.Entry.Kind)
	}
	return nil
}
