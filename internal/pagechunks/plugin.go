// Package pagechunks is a host bundler plugin that turns every module in the
// configured pages directories into its own load-on-demand chunk.
//
// The plugin never computes a chunk graph itself. It injects one synthetic
// entry that lazily imports every page, lets the bundler split that entry
// the way it splits any dynamic import, reads back the final chunk file
// names, writes them to a manifest, and drops the synthetic entry's own
// bundle before anything reaches disk.
package pagechunks

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/experius/pwa-buildpack/internal/host"
	"github.com/experius/pwa-buildpack/internal/logging"
)

// PluginName identifies the plugin in hook taps and error messages.
const PluginName = "PageChunksPlugin"

// entryKeyPrefix marks injected entries; the suffix makes the key unique.
const entryKeyPrefix = "__pagechunks_"

// Options configures the plugin. They are copied by New and never change.
type Options struct {
	// PagesDirs are absolute directories scanned, in order, for page modules.
	PagesDirs []string
	// ManifestFileName, when set, names the manifest asset relative to the
	// output directory. When empty no manifest is written.
	ManifestFileName string
}

// Plugin implements host.Plugin.
type Plugin struct {
	opts     Options
	entryKey string

	// Per-compilation state. The host runs hooks for one compilation at a
	// time, in order, so no locking is needed.
	pages    []Page
	manifest Manifest
}

// New validates opts and returns a plugin ready to be applied.
func New(opts Options) (*Plugin, error) {
	if len(opts.PagesDirs) == 0 {
		return nil, &ConfigurationError{
			Option:   "pagesDirs",
			Expected: "is a non-empty list of absolute directory paths",
			Got:      fmt.Sprintf("%q", opts.PagesDirs),
		}
	}
	dirs := make([]string, 0, len(opts.PagesDirs))
	for _, d := range opts.PagesDirs {
		if strings.TrimSpace(d) == "" || !filepath.IsAbs(d) {
			return nil, &ConfigurationError{
				Option:   "pagesDirs",
				Expected: "contains only absolute directory paths",
				Got:      fmt.Sprintf("%q", d),
			}
		}
		dirs = append(dirs, filepath.Clean(d))
	}

	if name := opts.ManifestFileName; name != "" {
		slashed := filepath.ToSlash(name)
		clean := path.Clean(slashed)
		if path.IsAbs(slashed) || filepath.IsAbs(name) || clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, &ConfigurationError{
				Option:   "manifestFileName",
				Expected: "is a file name relative to the output directory",
				Got:      fmt.Sprintf("%q", name),
			}
		}
	}

	return &Plugin{
		opts:     Options{PagesDirs: dirs, ManifestFileName: opts.ManifestFileName},
		entryKey: entryKeyPrefix + uuid.New().String()[:8],
	}, nil
}

// Name implements host.Plugin.
func (p *Plugin) Name() string { return PluginName }

// EntryKey is the private name the synthetic entry is injected under.
func (p *Plugin) EntryKey() string { return p.entryKey }

// Options returns a copy of the plugin's configuration.
func (p *Plugin) Options() Options {
	dirs := make([]string, len(p.opts.PagesDirs))
	copy(dirs, p.opts.PagesDirs)
	return Options{PagesDirs: dirs, ManifestFileName: p.opts.ManifestFileName}
}

// Pages returns the pages discovered by the most recent compilation.
func (p *Plugin) Pages() []Page {
	out := make([]Page, len(p.pages))
	copy(out, p.pages)
	return out
}

// Manifest returns the manifest resolved by the most recent compilation, or
// nil if none has completed.
func (p *Plugin) Manifest() Manifest {
	if p.manifest == nil {
		return nil
	}
	out := make(Manifest, len(p.manifest))
	for k, v := range p.manifest {
		out[k] = v
	}
	return out
}

// Apply rejects shorthand entry configurations and subscribes to the three
// lifecycle hooks the plugin needs.
func (p *Plugin) Apply(c host.Compiler) error {
	if entry := c.Options().Entry; entry.Kind != host.EntryObject {
		return &ConfigurationError{
			Option:   "entry",
			Expected: "is an object mapping entry names to module paths, so chunks can be attributed to named entries",
			Got:      fmt.Sprintf("%s %q", entry.Kind, entry.Paths),
		}
	}

	hooks := c.Hooks()
	hooks.BeforeEntryResolution.Tap(PluginName, p.injectEntry)
	hooks.AfterChunksFinalized.Tap(PluginName, p.resolveManifest)
	hooks.BeforeAssetEmit.Tap(PluginName, p.omitSyntheticEntry)
	return nil
}

func (p *Plugin) injectEntry(ctx context.Context, entries *host.EntrySet) error {
	p.pages, p.manifest = nil, nil

	pages, err := Scan(p.opts.PagesDirs)
	if err != nil {
		return err
	}
	src, err := SyntheticEntry(ctx, pages)
	if err != nil {
		return err
	}
	if _, exists := entries.Get(p.entryKey); exists {
		return &ConfigurationError{
			Option:   "entry",
			Expected: "does not use the reserved name " + p.entryKey,
			Got:      fmt.Sprintf("%q", p.entryKey),
		}
	}
	if err := entries.AddVirtual(p.entryKey, src); err != nil {
		return err
	}

	p.pages = pages
	logging.Pages("injected %s with %d pages", p.entryKey, len(pages))
	return nil
}

func (p *Plugin) resolveManifest(ctx context.Context, c *host.Compilation) error {
	m, err := ResolveManifest(p.entryKey, p.pages, c)
	if err != nil {
		return err
	}
	p.manifest = m

	if p.opts.ManifestFileName == "" {
		logging.PagesDebug("no manifest file configured; skipping manifest asset")
		return nil
	}
	data, err := m.JSON()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := c.EmitAsset(p.opts.ManifestFileName, data); err != nil {
		return fmt.Errorf("emit manifest: %w", err)
	}
	logging.Pages("emitted manifest %s with %d pages", p.opts.ManifestFileName, len(m))
	return nil
}

func (p *Plugin) omitSyntheticEntry(ctx context.Context, c *host.Compilation) error {
	for _, ch := range c.ChunksNamed(p.entryKey) {
		if !ch.Initial {
			continue
		}
		for _, f := range ch.Files {
			if c.DeleteAsset(f) {
				logging.PagesDebug("omitting synthetic entry asset %s", f)
			}
		}
	}
	return nil
}
