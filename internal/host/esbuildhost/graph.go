package esbuildhost

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/experius/pwa-buildpack/internal/host"
)

// output is one file esbuild produced, keyed by its slash path relative to
// the output directory.
type output struct {
	rel      string
	contents []byte
	meta     metaOutput
	chunk    *host.Chunk // nil for auxiliary files
	owner    *output     // chunk output a map or stylesheet belongs to
	final    string
}

// graph is the chunk graph reconstructed from one esbuild result.
type graph struct {
	outputs map[string]*output
	chunks  []*host.Chunk
	byChunk map[*host.Chunk]*output
}

// buildGraph classifies esbuild's outputs into named-entry, on-demand and
// shared chunks. Metafile paths are relative to the build context, which is
// esbuild's working directory. names maps absolute module paths to the chunk
// names their importers asked for; other on-demand chunks stay unnamed.
func buildGraph(opts *host.Options, entries *host.EntrySet, files []api.OutputFile, meta *metafile, names map[string]string) (*graph, error) {
	outDir := opts.Output.Path
	g := &graph{outputs: make(map[string]*output), byChunk: make(map[*host.Chunk]*output)}

	for _, f := range files {
		rel, err := relSlash(outDir, f.Path)
		if err != nil {
			return nil, err
		}
		g.outputs[rel] = &output{rel: rel, contents: f.Contents}
	}

	for key, m := range meta.Outputs {
		rel, err := relSlash(outDir, filepath.Join(opts.Context, filepath.FromSlash(key)))
		if err != nil {
			return nil, err
		}
		if o, ok := g.outputs[rel]; ok {
			o.meta = m
		}
	}

	var named, onDemand, shared []*output
	for _, e := range entries.All() {
		o, ok := g.outputs[e.Name+".js"]
		if !ok {
			o = g.outputFor(opts.Context, e)
		}
		if o == nil || o.chunk != nil {
			return nil, fmt.Errorf("esbuild produced no output for entry %q", e.Name)
		}
		module := e.Import
		if e.Virtual() {
			module = e.Name
		}
		o.chunk = &host.Chunk{Name: e.Name, Module: module, Initial: true}
		named = append(named, o)
	}

	for _, rel := range sortedKeys(g.outputs) {
		o := g.outputs[rel]
		if o.chunk != nil || !isScript(rel) {
			continue
		}
		if ep := o.meta.EntryPoint; ep != "" {
			module := modulePath(opts.Context, ep)
			o.chunk = &host.Chunk{Name: names[module], Module: module}
			onDemand = append(onDemand, o)
			continue
		}
		o.chunk = &host.Chunk{}
		shared = append(shared, o)
	}

	sort.SliceStable(onDemand, func(i, j int) bool {
		a, b := onDemand[i].chunk, onDemand[j].chunk
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Module < b.Module
	})

	id := 0
	for _, group := range [][]*output{named, onDemand, shared} {
		for _, o := range group {
			o.chunk.ID = strconv.Itoa(id)
			id++
			g.chunks = append(g.chunks, o.chunk)
			g.byChunk[o.chunk] = o
		}
	}

	// Attach stylesheets and source maps to the chunk they belong to.
	for _, o := range g.outputs {
		if o.chunk == nil {
			continue
		}
		if css := o.meta.CSSBundle; css != "" {
			rel, err := relSlash(outDir, filepath.Join(opts.Context, filepath.FromSlash(css)))
			if err == nil {
				if aux, ok := g.outputs[rel]; ok {
					aux.owner = o
				}
			}
		}
	}
	for rel, o := range g.outputs {
		if o.chunk != nil || o.owner != nil || !strings.HasSuffix(rel, ".map") {
			continue
		}
		if target, ok := g.outputs[strings.TrimSuffix(rel, ".map")]; ok {
			if target.chunk != nil {
				o.owner = target
			} else if target.owner != nil {
				o.owner = target.owner
			}
		}
	}

	// Parents are the chunks that import this one.
	for _, o := range g.outputs {
		if o.chunk == nil {
			continue
		}
		parent := o.chunk.Name
		if parent == "" {
			parent = o.chunk.ID
		}
		for _, imp := range o.meta.Imports {
			if imp.External {
				continue
			}
			rel, err := relSlash(outDir, filepath.Join(opts.Context, filepath.FromSlash(imp.Path)))
			if err != nil {
				continue
			}
			if t, ok := g.outputs[rel]; ok && t.chunk != nil && !t.chunk.HasParent(parent) {
				t.chunk.Parents = append(t.chunk.Parents, parent)
			}
		}
	}
	for _, ch := range g.chunks {
		sort.Strings(ch.Parents)
	}
	return g, nil
}

// outputFor finds the script output whose metafile entry point is e.
func (g *graph) outputFor(workDir string, e host.EntryPoint) *output {
	want := virtualPath(e.Name)
	if !e.Virtual() {
		rel, err := relSlash(workDir, e.Import)
		if err != nil {
			return nil
		}
		want = rel
	}
	for _, rel := range sortedKeys(g.outputs) {
		if o := g.outputs[rel]; isScript(rel) && o.chunk == nil && o.meta.EntryPoint == want {
			return o
		}
	}
	return nil
}

// rename applies the host filename templates and rewrites the relative
// specifiers esbuild wrote between outputs. It fails when two outputs end
// up with the same name.
func (g *graph) rename(opts *host.Options) error {
	taken := make(map[string]string)
	claim := func(o *output, name string) error {
		if prev, ok := taken[name]; ok {
			return &host.CompileError{Messages: []string{
				fmt.Sprintf("Conflict: multiple chunks emit to the same filename %s (%s and %s)", name, prev, o.rel),
			}}
		}
		taken[name] = o.rel
		o.final = name
		return nil
	}

	for _, ch := range g.chunks {
		o := g.byChunk[ch]
		tmpl := opts.Output.ChunkFilename
		if ch.Initial {
			tmpl = opts.Output.Filename
		}
		sum := sha256.Sum256(o.contents)
		name := host.RenderTemplate(tmpl, host.PathData{Name: ch.Name, ID: ch.ID, Hash: hex.EncodeToString(sum[:])})
		if err := claim(o, path.Clean(name)); err != nil {
			return err
		}
	}
	for _, rel := range sortedKeys(g.outputs) {
		o := g.outputs[rel]
		switch {
		case o.final != "":
		case o.owner != nil && strings.HasSuffix(rel, ".map"):
			// Keys are sorted, so the mapped file is already named.
			target := g.outputs[strings.TrimSuffix(rel, ".map")]
			if err := claim(o, target.final+".map"); err != nil {
				return err
			}
		case o.owner != nil:
			if err := claim(o, replaceExt(o.owner.final, path.Ext(rel))); err != nil {
				return err
			}
		default:
			if err := claim(o, rel); err != nil {
				return err
			}
		}
	}

	for _, ch := range g.chunks {
		ch.Files = nil
	}
	for _, rel := range sortedKeys(g.outputs) {
		o := g.outputs[rel]
		switch {
		case o.chunk != nil:
			o.chunk.Files = append([]string{o.final}, o.chunk.Files...)
		case o.owner != nil:
			o.owner.chunk.Files = append(o.owner.chunk.Files, o.final)
		}
	}

	for _, o := range g.outputs {
		if isScript(o.rel) || path.Ext(o.rel) == ".css" {
			o.contents = g.rewrite(o)
		}
	}
	return nil
}

// rewrite replaces references from o to other outputs with their final names.
func (g *graph) rewrite(o *output) []byte {
	fromOld, fromNew := path.Dir(o.rel), path.Dir(o.final)
	var pairs []string
	for _, t := range g.outputs {
		if t == o {
			continue
		}
		if strings.HasSuffix(t.rel, ".map") {
			if t.owner == nil || g.outputs[strings.TrimSuffix(t.rel, ".map")] != o {
				continue
			}
			pairs = append(pairs,
				"sourceMappingURL="+relSpec(fromOld, t.rel, false),
				"sourceMappingURL="+relSpec(fromNew, t.final, false))
			continue
		}
		oldSpec, newSpec := relSpec(fromOld, t.rel, true), relSpec(fromNew, t.final, true)
		if oldSpec == newSpec {
			continue
		}
		for _, q := range []string{`"`, `'`} {
			pairs = append(pairs, q+oldSpec+q, q+newSpec+q)
		}
	}
	if len(pairs) == 0 {
		return o.contents
	}
	return []byte(strings.NewReplacer(pairs...).Replace(string(o.contents)))
}

// relSpec is the specifier used in from/ to reach to.
func relSpec(from, to string, dotted bool) string {
	rel, err := filepath.Rel(filepath.FromSlash(from), filepath.FromSlash(to))
	if err != nil {
		return to
	}
	rel = filepath.ToSlash(rel)
	if dotted && !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func relSlash(base, target string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", fmt.Errorf("output %s is outside %s: %w", target, base, err)
	}
	return filepath.ToSlash(rel), nil
}

// modulePath turns a metafile entry point into an absolute module path.
// Paths in other namespaces are returned as they are.
func modulePath(workDir, entryPoint string) string {
	if strings.HasPrefix(entryPoint, virtualNamespace+":") {
		return strings.TrimPrefix(entryPoint, virtualNamespace+":")
	}
	if filepath.IsAbs(entryPoint) {
		return entryPoint
	}
	return filepath.Join(workDir, filepath.FromSlash(entryPoint))
}

func isScript(name string) bool {
	switch path.Ext(name) {
	case ".js", ".mjs", ".cjs":
		return true
	}
	return false
}

func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}

func sortedKeys(m map[string]*output) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
