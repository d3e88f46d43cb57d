// Package esbuildhost runs host compilations on esbuild.
//
// esbuild does the bundling and code splitting. The compiler rebuilds the
// chunk graph from esbuild's metafile, renames every output through the
// host filename templates, and runs the host lifecycle hooks around it so
// plugins see the same compilation they would on any other host.
package esbuildhost

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/experius/pwa-buildpack/internal/host"
	"github.com/experius/pwa-buildpack/internal/logging"
)

// Compiler implements host.Compiler.
type Compiler struct {
	opts    host.Options
	hooks   *host.Hooks
	plugins []host.Plugin
	bundler BundlerOptions
	out     host.OutputFS
}

// New validates opts and applies plugins in order. A plugin that rejects
// the configuration fails construction.
func New(opts host.Options, plugins ...host.Plugin) (*Compiler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := &Compiler{
		opts:    opts,
		hooks:   host.NewHooks(),
		bundler: DefaultBundlerOptions(),
		out:     host.DiskFS{},
	}
	for _, p := range plugins {
		if err := p.Apply(c); err != nil {
			return nil, err
		}
		c.plugins = append(c.plugins, p)
		logging.BuildDebug("applied plugin %s", p.Name())
	}
	return c, nil
}

// Options implements host.Compiler.
func (c *Compiler) Options() *host.Options { return &c.opts }

// Hooks implements host.Compiler.
func (c *Compiler) Hooks() *host.Hooks { return c.hooks }

// WithOutputFS replaces the file system assets are written to.
func (c *Compiler) WithOutputFS(out host.OutputFS) *Compiler {
	c.out = out
	return c
}

// WithBundler replaces the esbuild knobs.
func (c *Compiler) WithBundler(b BundlerOptions) (*Compiler, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	c.bundler = b
	return c, nil
}

// Run performs one compilation and writes its assets.
func (c *Compiler) Run(ctx context.Context) (*host.Stats, error) {
	timer := logging.StartTimer(logging.CategoryBuild, "compilation")
	start := time.Now()

	entries, err := host.NewEntrySet(c.opts.Context, c.opts.Entry)
	if err != nil {
		return nil, err
	}
	if err := c.hooks.BeforeEntryResolution.Call(ctx, entries); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	comp, err := c.compile(ctx, entries)
	if err != nil {
		return nil, err
	}

	if err := c.hooks.AfterChunksFinalized.Call(ctx, comp); err != nil {
		return nil, err
	}
	if err := c.hooks.BeforeAssetEmit.Call(ctx, comp); err != nil {
		return nil, err
	}
	written, err := host.Emit(ctx, c.out, comp)
	if err != nil {
		return nil, err
	}

	stats := &host.Stats{
		Entries:  entries.Names(),
		Chunks:   comp.Chunks,
		Assets:   written,
		Duration: time.Since(start),
	}
	if err := c.hooks.Done.Call(ctx, stats); err != nil {
		return nil, err
	}
	timer.StopWithInfo()
	logging.Build("wrote %d assets to %s", len(written), c.opts.Output.Path)
	return stats, nil
}

// compile runs esbuild and turns its result into a compilation.
func (c *Compiler) compile(ctx context.Context, entries *host.EntrySet) (*host.Compilation, error) {
	points := make([]api.EntryPoint, 0, entries.Len())
	for _, e := range entries.All() {
		input := e.Import
		if e.Virtual() {
			input = virtualPath(e.Name)
		}
		points = append(points, api.EntryPoint{InputPath: input, OutputPath: e.Name})
	}

	build := api.BuildOptions{
		EntryPointsAdvanced: points,
		AbsWorkingDir:       c.opts.Context,
		Outdir:              c.opts.Output.Path,
		EntryNames:          "[name]-[hash]",
		ChunkNames:          "chunk-[hash]",
		AssetNames:          "[name]-[hash]",
		Bundle:              true,
		Splitting:           true,
		Format:              api.FormatESModule,
		Write:               false,
		Metafile:            true,
		LogLevel:            api.LogLevelSilent,
		Loader:              map[string]api.Loader{".js": api.LoaderJSX},
		Plugins:             []api.Plugin{virtualModules(entries, c.opts.Context)},
	}
	if err := c.bundler.apply(&build); err != nil {
		return nil, err
	}

	logging.BuildDebug("bundling %d entries from %s", len(points), c.opts.Context)
	result := api.Build(build)
	for _, msg := range api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		logging.BuildWarn("%s", msg)
	}
	if len(result.Errors) > 0 {
		return nil, &host.CompileError{Messages: api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})}
	}

	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		return nil, err
	}
	names := chunkNames(ctx, c.opts.Context, entries, meta)
	g, err := buildGraph(&c.opts, entries, result.OutputFiles, meta, names)
	if err != nil {
		return nil, err
	}
	if err := g.rename(&c.opts); err != nil {
		return nil, err
	}

	comp := host.NewCompilation(&c.opts, entries)
	comp.Chunks = g.chunks
	for _, o := range g.outputs {
		if err := comp.EmitAsset(o.final, o.contents); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", filepath.FromSlash(o.final), err)
		}
	}
	logging.BuildDebug("esbuild produced %d chunks and %d files", len(comp.Chunks), len(g.outputs))
	return comp, nil
}
