package esbuildhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/experius/pwa-buildpack/internal/host"
)

func hash8(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, src := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return root
}

func projectOptions(root string) host.Options {
	return host.Options{
		Context: root,
		Entry:   host.ObjectEntry(host.NamedImport{Name: "main", Import: "./src/main.js"}),
		Output: host.Output{
			Path:          filepath.Join(root, "dist"),
			Filename:      "[name].js",
			ChunkFilename: "[name].chunk.js",
		},
	}
}

// =============================================================================
// GRAPH TESTS
// =============================================================================

func TestBuildGraph_ClassifiesAndRenames(t *testing.T) {
	const (
		mainSrc   = "import(\"./Page1-AAAA.js\");\nimport \"./chunk-BBBB.js\";\n//# sourceMappingURL=main.js.map\n"
		pageSrc   = "import './chunk-BBBB.js';\nexport default 1;\n"
		sharedSrc = "export const shared = 1;\n"
	)
	opts := host.Options{
		Context: "/proj",
		Entry:   host.ObjectEntry(host.NamedImport{Name: "main", Import: "/proj/src/main.js"}),
		Output:  host.Output{Path: "/proj/dist", Filename: "[name].js", ChunkFilename: "[name].[contenthash:8].js"},
	}
	entries, err := host.NewEntrySet(opts.Context, opts.Entry)
	require.NoError(t, err)

	files := []api.OutputFile{
		{Path: "/proj/dist/main.js", Contents: []byte(mainSrc)},
		{Path: "/proj/dist/main.js.map", Contents: []byte("{}")},
		{Path: "/proj/dist/Page1-AAAA.js", Contents: []byte(pageSrc)},
		{Path: "/proj/dist/chunk-BBBB.js", Contents: []byte(sharedSrc)},
	}
	meta := &metafile{Outputs: map[string]metaOutput{
		"dist/main.js": {EntryPoint: "src/main.js", Imports: []metaImport{
			{Path: "dist/Page1-AAAA.js", Kind: "dynamic-import"},
			{Path: "dist/chunk-BBBB.js", Kind: "import-statement"},
			{Path: "react", Kind: "import-statement", External: true},
		}},
		"dist/main.js.map":   {},
		"dist/Page1-AAAA.js": {EntryPoint: "src/pages/Page1.js", Imports: []metaImport{{Path: "dist/chunk-BBBB.js", Kind: "import-statement"}}},
		"dist/chunk-BBBB.js": {},
	}}

	names := map[string]string{"/proj/src/pages/Page1.js": "Page1"}
	g, err := buildGraph(&opts, entries, files, meta, names)
	require.NoError(t, err)
	require.NoError(t, g.rename(&opts))

	pageFile := "Page1." + hash8(pageSrc) + ".js"
	sharedFile := "2." + hash8(sharedSrc) + ".js"
	want := []*host.Chunk{
		{ID: "0", Name: "main", Module: "/proj/src/main.js", Initial: true, Files: []string{"main.js", "main.js.map"}},
		{ID: "1", Name: "Page1", Module: "/proj/src/pages/Page1.js", Files: []string{pageFile}, Parents: []string{"main"}},
		{ID: "2", Files: []string{sharedFile}, Parents: []string{"Page1", "main"}},
	}
	if diff := cmp.Diff(want, g.chunks); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}

	main := string(g.outputs["main.js"].contents)
	assert.Contains(t, main, `import("./`+pageFile+`")`)
	assert.Contains(t, main, `import "./`+sharedFile+`"`)
	assert.Contains(t, main, "sourceMappingURL=main.js.map")
	assert.Contains(t, string(g.outputs["Page1-AAAA.js"].contents), `import './`+sharedFile+`'`)
}

func TestRename_TemplateDirectories(t *testing.T) {
	opts := host.Options{
		Context: "/proj",
		Entry:   host.ObjectEntry(host.NamedImport{Name: "main", Import: "/proj/src/main.js"}),
		Output:  host.Output{Path: "/proj/dist", Filename: "js/[name].js", ChunkFilename: "js/chunks/[name].js"},
	}
	entries, err := host.NewEntrySet(opts.Context, opts.Entry)
	require.NoError(t, err)
	files := []api.OutputFile{
		{Path: "/proj/dist/main.js", Contents: []byte(`import("./Home-X.js");`)},
		{Path: "/proj/dist/Home-X.js", Contents: []byte(`export default 1;`)},
	}
	meta := &metafile{Outputs: map[string]metaOutput{
		"dist/main.js":   {EntryPoint: "src/main.js", Imports: []metaImport{{Path: "dist/Home-X.js", Kind: "dynamic-import"}}},
		"dist/Home-X.js": {EntryPoint: "src/Home.js"},
	}}

	g, err := buildGraph(&opts, entries, files, meta, map[string]string{"/proj/src/Home.js": "Home"})
	require.NoError(t, err)
	require.NoError(t, g.rename(&opts))

	assert.Equal(t, "js/main.js", g.outputs["main.js"].final)
	assert.Equal(t, "js/chunks/Home.js", g.outputs["Home-X.js"].final)
	assert.Equal(t, `import("./chunks/Home.js");`, string(g.outputs["main.js"].contents))
}

func TestRename_Conflict(t *testing.T) {
	opts := host.Options{
		Context: "/proj",
		Entry:   host.ObjectEntry(host.NamedImport{Name: "main", Import: "/proj/src/main.js"}),
		Output:  host.Output{Path: "/proj/dist", Filename: "[name].js", ChunkFilename: "page.js"},
	}
	entries, err := host.NewEntrySet(opts.Context, opts.Entry)
	require.NoError(t, err)
	files := []api.OutputFile{
		{Path: "/proj/dist/main.js", Contents: []byte("a")},
		{Path: "/proj/dist/A-1.js", Contents: []byte("b")},
		{Path: "/proj/dist/B-2.js", Contents: []byte("c")},
	}
	meta := &metafile{Outputs: map[string]metaOutput{
		"dist/main.js": {EntryPoint: "src/main.js"},
		"dist/A-1.js":  {EntryPoint: "src/A.js"},
		"dist/B-2.js":  {EntryPoint: "src/B.js"},
	}}

	g, err := buildGraph(&opts, entries, files, meta, nil)
	require.NoError(t, err)
	err = g.rename(&opts)
	require.Error(t, err)
	var ce *host.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), "Conflict: multiple chunks emit to the same filename page.js")
}

func TestBuildGraph_MissingEntryOutput(t *testing.T) {
	opts := projectOptions("/proj")
	entries, err := host.NewEntrySet(opts.Context, opts.Entry)
	require.NoError(t, err)
	_, err = buildGraph(&opts, entries, nil, &metafile{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no output for entry "main"`)
}

// =============================================================================
// BUNDLER OPTIONS TESTS
// =============================================================================

func TestBundlerOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultBundlerOptions().Validate())
	assert.NoError(t, BundlerOptions{}.Validate())
	assert.NoError(t, BundlerOptions{Target: "ESNext", Platform: "node"}.Validate())
	assert.Error(t, BundlerOptions{Target: "es3"}.Validate())
	assert.Error(t, BundlerOptions{Platform: "deno"}.Validate())

	var o api.BuildOptions
	require.NoError(t, BundlerOptions{Minify: true, Sourcemap: true, Target: "es2017"}.apply(&o))
	assert.True(t, o.MinifyWhitespace)
	assert.True(t, o.MinifySyntax)
	assert.Equal(t, api.SourceMapLinked, o.Sourcemap)
	assert.Equal(t, api.ES2017, o.Target)
	assert.Equal(t, api.PlatformBrowser, o.Platform)
}

// =============================================================================
// COMPILER TESTS
// =============================================================================

func TestNew_InvalidOptions(t *testing.T) {
	opts := projectOptions("relative")
	_, err := New(opts)
	require.Error(t, err)
}

type failingPlugin struct{}

func (failingPlugin) Name() string { return "failing" }
func (failingPlugin) Apply(host.Compiler) error { return errors.New("nope") }

func TestNew_PluginErrorFailsConstruction(t *testing.T) {
	_, err := New(projectOptions(t.TempDir()), failingPlugin{})
	require.EqualError(t, err, "nope")
}

func TestRun_SplitsDynamicImports(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/main.js": "import(/* webpackChunkName: \"lazy\" */ './lazy.js').then((m) => console.log(m.default));\n",
		"src/lazy.js": "export default 42;\n",
	})
	out := host.NewMemoryFS()
	c, err := New(projectOptions(root))
	require.NoError(t, err)
	c.WithOutputFS(out)

	var order []string
	c.Hooks().AfterChunksFinalized.Tap("test", func(_ context.Context, comp *host.Compilation) error {
		order = append(order, "after-chunks")
		require.Len(t, comp.ChunksNamed("lazy"), 1)
		assert.Equal(t, []string{"main"}, comp.ChunksNamed("lazy")[0].Parents)
		return nil
	})
	c.Hooks().Done.Tap("test", func(_ context.Context, s *host.Stats) error {
		order = append(order, "done")
		return nil
	})

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"after-chunks", "done"}, order)
	assert.Equal(t, []string{"lazy.chunk.js", "main.js"}, stats.Assets)
	assert.Equal(t, stats.Assets, out.Files(filepath.Join(root, "dist")))

	main, err := out.ReadFile(filepath.Join(root, "dist", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(main), "./lazy.chunk.js")
	assert.False(t, strings.Contains(string(main), "lazy-"), "esbuild names are rewritten")
}

func TestRun_WritesToDisk(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/main.js": "console.log('hello');\n",
	})
	c, err := New(projectOptions(root))
	require.NoError(t, err)
	_, err = c.WithBundler(BundlerOptions{Minify: true, Sourcemap: true})
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "dist", "main.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "main.js.map"))
}

func TestRun_CompileError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/main.js": "export default {\n",
	})
	c, err := New(projectOptions(root))
	require.NoError(t, err)
	c.WithOutputFS(host.NewMemoryFS())

	_, err = c.Run(context.Background())
	require.Error(t, err)
	var ce *host.CompileError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Messages)
}

func TestRun_VirtualEntry(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/main.js": "console.log('main');\n",
		"src/page.js": "export default 'page';\n",
	})
	c, err := New(projectOptions(root))
	require.NoError(t, err)
	out := host.NewMemoryFS()
	c.WithOutputFS(out)

	src := "export default () => import(/* webpackChunkName: \"page\" */ " + `"` + filepath.ToSlash(filepath.Join(root, "src", "page.js")) + `"` + ");\n"
	c.Hooks().BeforeEntryResolution.Tap("test", func(_ context.Context, entries *host.EntrySet) error {
		return entries.AddVirtual("virtual", []byte(src))
	})

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "virtual"}, stats.Entries)
	assert.Contains(t, stats.Assets, "virtual.js")
	assert.Contains(t, stats.Assets, "page.chunk.js")
}

func TestRun_UnnamedDynamicImportUsesID(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/main.js":             "import('./components/Page2.js');\nimport(/* webpackChunkName: \"Page2\" */ './pages/Page2.js');\n",
		"src/components/Page2.js": "export default 'component';\n",
		"src/pages/Page2.js":      "export default 'page';\n",
	})
	c, err := New(projectOptions(root))
	require.NoError(t, err)
	c.WithOutputFS(host.NewMemoryFS())

	var chunks []*host.Chunk
	c.Hooks().AfterChunksFinalized.Tap("test", func(_ context.Context, comp *host.Compilation) error {
		chunks = comp.Chunks
		return nil
	})

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1.chunk.js", "Page2.chunk.js", "main.js"}, stats.Assets)

	byFile := make(map[string]*host.Chunk)
	for _, ch := range chunks {
		byFile[ch.Files[0]] = ch
	}
	assert.Equal(t, "", byFile["1.chunk.js"].Name)
	assert.Equal(t, filepath.Join(root, "src", "components", "Page2.js"), byFile["1.chunk.js"].Module)
	assert.Equal(t, filepath.Join(root, "src", "pages", "Page2.js"), byFile["Page2.chunk.js"].Module)
}

func TestChunkNames_FromAnnotations(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/main.js": "import(/* webpackChunkName: 'Don\\'t' */ './a.js');\nimport('./b.js');\n",
	})
	entries, err := host.NewEntrySet(root, host.ObjectEntry(host.NamedImport{Name: "main", Import: "./src/main.js"}))
	require.NoError(t, err)
	require.NoError(t, entries.AddVirtual("virtual", []byte(`import(/* webpackChunkName: "V" */ "./src/c.js");`)))

	meta := &metafile{Inputs: map[string]metaInput{
		"src/main.js": {Imports: []metaImport{
			{Path: "src/a.js", Kind: "dynamic-import", Original: "./a.js"},
			{Path: "src/b.js", Kind: "dynamic-import", Original: "./b.js"},
		}},
		virtualPath("virtual"): {Imports: []metaImport{
			{Path: "src/c.js", Kind: "dynamic-import", Original: "./src/c.js"},
		}},
	}}

	names := chunkNames(context.Background(), root, entries, meta)
	want := map[string]string{
		filepath.Join(root, "src", "a.js"): "Don't",
		filepath.Join(root, "src", "c.js"): "V",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}
