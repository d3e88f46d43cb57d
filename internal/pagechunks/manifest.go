package pagechunks

import (
	"encoding/json"
	"path"
	"sort"

	"github.com/experius/pwa-buildpack/internal/host"
)

// Manifest maps page names to the chunk file that implements each page.
type Manifest map[string]string

// Names returns the page names in alphabetical order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// JSON renders the manifest as an indented object with keys in alphabetical
// order and a trailing newline.
func (m Manifest) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(map[string]string(m), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ParseManifest reads a manifest written by JSON.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ResolveManifest matches every page to the on-demand chunk carrying its
// name. When several chunks share a name, the one loaded by the synthetic
// entry wins. Every page must resolve to a file present in the
// compilation's assets.
func ResolveManifest(entryKey string, pages []Page, c *host.Compilation) (Manifest, error) {
	m := make(Manifest, len(pages))
	var missing, absent []string

	for _, p := range pages {
		chunk := pageChunk(entryKey, p, c)
		if chunk == nil {
			missing = append(missing, p.Name)
			continue
		}
		file := primaryFile(chunk.Files)
		if file == "" || !c.HasAsset(file) {
			absent = append(absent, p.Name)
			continue
		}
		m[p.Name] = file
	}

	if len(missing) > 0 {
		return nil, &ResolutionError{Pages: missing, Reason: "no output chunk was produced"}
	}
	if len(absent) > 0 {
		return nil, &ResolutionError{Pages: absent, Reason: "chunk file is missing from the compilation assets"}
	}
	return m, nil
}

func pageChunk(entryKey string, p Page, c *host.Compilation) *host.Chunk {
	var candidates []*host.Chunk
	for _, ch := range c.ChunksNamed(p.Name) {
		if !ch.Initial {
			candidates = append(candidates, ch)
		}
	}
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}
	for _, ch := range candidates {
		if ch.HasParent(entryKey) {
			return ch
		}
	}
	return candidates[0]
}

// primaryFile picks the JavaScript file of a chunk; chunks may also carry
// stylesheets and source maps.
func primaryFile(files []string) string {
	for _, f := range files {
		switch path.Ext(f) {
		case ".js", ".mjs", ".cjs":
			return f
		}
	}
	if len(files) > 0 {
		return files[0]
	}
	return ""
}
