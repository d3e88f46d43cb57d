package host

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// Chunk is one unit of output produced by splitting the module graph.
type Chunk struct {
	ID      string   // stable id within one compilation
	Name    string   // logical name: entry name, or module base name for on-demand chunks
	Module  string   // module the chunk is rooted at: absolute path or virtual entry name
	Files   []string // output file names relative to Output.Path, final (post-template)
	Initial bool     // true for named entries, false for on-demand and shared chunks
	Parents []string // names of chunks that load this one on demand
}

// HasParent reports whether the named chunk loads this one.
func (c *Chunk) HasParent(name string) bool {
	for _, p := range c.Parents {
		if p == name {
			return true
		}
	}
	return false
}

// Compilation holds the result of bundling until it is written.
type Compilation struct {
	Options *Options
	Entries *EntrySet
	Chunks  []*Chunk

	assets map[string][]byte
}

// NewCompilation returns an empty compilation for the given entries.
func NewCompilation(opts *Options, entries *EntrySet) *Compilation {
	return &Compilation{
		Options: opts,
		Entries: entries,
		assets:  make(map[string][]byte),
	}
}

// ChunksNamed returns every chunk with the given logical name.
func (c *Compilation) ChunksNamed(name string) []*Chunk {
	var out []*Chunk
	for _, ch := range c.Chunks {
		if ch.Name == name {
			out = append(out, ch)
		}
	}
	return out
}

// Asset returns an asset's contents.
func (c *Compilation) Asset(name string) ([]byte, bool) {
	data, ok := c.assets[name]
	return data, ok
}

// HasAsset reports whether an asset will be written.
func (c *Compilation) HasAsset(name string) bool {
	_, ok := c.assets[name]
	return ok
}

// EmitAsset adds a new asset. Names are slash-separated and relative to the
// output directory; emitting an existing name is an error.
func (c *Compilation) EmitAsset(name string, data []byte) error {
	clean, err := cleanAssetName(name)
	if err != nil {
		return err
	}
	if _, ok := c.assets[clean]; ok {
		return fmt.Errorf("asset %q already exists", clean)
	}
	c.assets[clean] = data
	return nil
}

// UpdateAsset replaces an existing asset's contents.
func (c *Compilation) UpdateAsset(name string, data []byte) error {
	if _, ok := c.assets[name]; !ok {
		return fmt.Errorf("asset %q does not exist", name)
	}
	c.assets[name] = data
	return nil
}

// DeleteAsset removes an asset so it is never written. It reports whether
// the asset existed.
func (c *Compilation) DeleteAsset(name string) bool {
	if _, ok := c.assets[name]; !ok {
		return false
	}
	delete(c.assets, name)
	return true
}

// AssetNames returns every asset name in lexical order.
func (c *Compilation) AssetNames() []string {
	names := make([]string, 0, len(c.assets))
	for n := range c.assets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func cleanAssetName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("asset name is required")
	}
	slashed := strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(slashed) {
		return "", fmt.Errorf("asset %q must be relative to the output directory", name)
	}
	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("asset %q escapes the output directory", name)
	}
	return clean, nil
}

// Stats summarises a finished compilation.
type Stats struct {
	Entries  []string // entry names, including plugin-injected ones
	Chunks   []*Chunk
	Assets   []string // written asset names, lexical order
	Duration time.Duration
}

// CompileError reports bundler diagnostics.
type CompileError struct {
	Messages []string
}

func (e *CompileError) Error() string {
	if len(e.Messages) == 1 {
		return "compilation failed: " + strings.TrimSpace(e.Messages[0])
	}
	return fmt.Sprintf("compilation failed with %d errors:\n%s", len(e.Messages), strings.Join(e.Messages, "\n"))
}
