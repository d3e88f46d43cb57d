package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/experius/pwa-buildpack/internal/host"
)

// =============================================================================
// CONFIG TESTS
// =============================================================================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"BUILDPACK_OUTPUT_PATH", "BUILDPACK_LOG_LEVEL",
		"BUILDPACK_GLOBAL_CONFIG_DB", "BUILDPACK_GLOBAL_CONFIG_DRIVER",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Entry.Kind != host.EntryObject {
		t.Errorf("expected object entry, got %s", cfg.Entry.Kind)
	}
	if cfg.Output.ChunkFilename != "[name].chunk.js" {
		t.Errorf("expected ChunkFilename=[name].chunk.js, got %s", cfg.Output.ChunkFilename)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_MissingFileReturnsResolvedDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Context != dir {
		t.Errorf("expected Context=%s, got %s", dir, cfg.Context)
	}
	if want := filepath.Join(dir, "dist"); cfg.Output.Path != want {
		t.Errorf("expected Output.Path=%s, got %s", want, cfg.Output.Path)
	}
	if want := filepath.Join(dir, "src", "pages"); cfg.Pages.Dirs[0] != want {
		t.Errorf("expected pages dir %s, got %s", want, cfg.Pages.Dirs[0])
	}
}

func TestLoad_ParsesAndResolves(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
context: app
entry:
  main: ./src/entry.js
  admin: ./src/admin.js
output:
  path: build
  chunk_filename: "[name].foobar.js"
pages:
  dirs: [src/pages, /abs/pages]
  manifest_file_name: ""
bundler:
  minify: true
  target: es2017
watch:
  debounce: 1s
logging:
  level: debug
  format: json
  file: logs/build.log
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	base := filepath.Dir(path)
	ctx := filepath.Join(base, "app")

	if cfg.Context != ctx {
		t.Errorf("expected Context=%s, got %s", ctx, cfg.Context)
	}
	if want := filepath.Join(ctx, "build"); cfg.Output.Path != want {
		t.Errorf("expected Output.Path=%s, got %s", want, cfg.Output.Path)
	}
	if cfg.Output.Filename != "[name].js" {
		t.Errorf("unset fields keep defaults, got Filename=%s", cfg.Output.Filename)
	}
	if cfg.Pages.Dirs[1] != "/abs/pages" {
		t.Errorf("absolute dirs are kept, got %s", cfg.Pages.Dirs[1])
	}
	if cfg.Pages.ManifestFileName != "" {
		t.Errorf("expected manifest disabled, got %q", cfg.Pages.ManifestFileName)
	}
	if got := cfg.GetWatchDebounce(); got != time.Second {
		t.Errorf("expected debounce 1s, got %s", got)
	}
	if want := filepath.Join(base, "logs", "build.log"); cfg.Logging.File != want {
		t.Errorf("expected log file %s, got %s", want, cfg.Logging.File)
	}

	opts := cfg.HostOptions()
	if opts.Entry.Kind != host.EntryObject || len(opts.Entry.Named) != 2 {
		t.Fatalf("expected two named entries, got %+v", opts.Entry)
	}
	if opts.Entry.Named[0].Name != "main" || opts.Entry.Named[1].Name != "admin" {
		t.Errorf("entry order not preserved: %+v", opts.Entry.Named)
	}
	if b := cfg.BundlerOptions(); !b.Minify || b.Target != "es2017" {
		t.Errorf("unexpected bundler options %+v", b)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_EntryShapes(t *testing.T) {
	clearEnv(t)
	cases := map[string]struct {
		yaml string
		kind host.EntryKind
	}{
		"string": {"entry: ./src/index.js\n", host.EntryString},
		"array":  {"entry: [./src/index.js]\n", host.EntryArray},
		"object": {"entry:\n  main: ./src/index.js\n", host.EntryObject},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.yaml))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Entry.Kind != tc.kind {
				t.Errorf("expected %s, got %s", tc.kind, cfg.Entry.Kind)
			}
			if cfg.HostOptions().Entry.Kind != tc.kind {
				t.Errorf("shape lost converting to host options")
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("shorthand entries are left to plugins, got %v", err)
			}
		})
	}

	if _, err := Load(writeConfig(t, "entry:\n  main: [a, b]\n")); err == nil {
		t.Error("expected error for nested entry value")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", DefaultFileName)

	cfg := DefaultConfig()
	cfg.Entry = EntryConfig{Kind: host.EntryObject, Named: []host.NamedImport{
		{Name: "zeta", Import: "./z.js"},
		{Name: "alpha", Import: "./a.js"},
	}}
	cfg.Output.ChunkFilename = "[name].[contenthash:8].js"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Output.ChunkFilename != "[name].[contenthash:8].js" {
		t.Errorf("expected ChunkFilename round trip, got %s", loaded.Output.ChunkFilename)
	}
	if got := loaded.Entry.Named; len(got) != 2 || got[0].Name != "zeta" {
		t.Errorf("expected entry order zeta, alpha; got %+v", got)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BUILDPACK_OUTPUT_PATH", "/tmp/out")
	t.Setenv("BUILDPACK_LOG_LEVEL", "warn")
	t.Setenv("BUILDPACK_GLOBAL_CONFIG_DB", "state/config.db")
	t.Setenv("BUILDPACK_GLOBAL_CONFIG_DRIVER", "sqlite")

	path := writeConfig(t, "output:\n  path: dist\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Output.Path != "/tmp/out" {
		t.Errorf("expected Output.Path=/tmp/out, got %s", cfg.Output.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected Level=warn, got %s", cfg.Logging.Level)
	}
	if want := filepath.Join(filepath.Dir(path), "state", "config.db"); cfg.GlobalConfig.Path != want {
		t.Errorf("expected store path %s, got %s", want, cfg.GlobalConfig.Path)
	}
	db, err := cfg.OpenGlobalConfig()
	if err != nil {
		t.Fatalf("OpenGlobalConfig failed: %v", err)
	}
	if db.Driver() != "sqlite" {
		t.Errorf("expected driver sqlite, got %s", db.Driver())
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad template":   func(c *Config) { c.Output.ChunkFilename = "[chunk].js" },
		"empty filename": func(c *Config) { c.Output.Filename = "" },
		"no pages":       func(c *Config) { c.Pages.Dirs = nil },
		"no entry":       func(c *Config) { c.Entry = EntryConfig{Kind: host.EntryObject} },
		"bad target":     func(c *Config) { c.Bundler.Target = "es3" },
		"bad debounce":   func(c *Config) { c.Watch.Debounce = "soon" },
		"bad driver":     func(c *Config) { c.GlobalConfig.Driver = "postgres" },
		"bad level":      func(c *Config) { c.Logging.Level = "loud" },
		"bad format":     func(c *Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watch.Debounce = "garbage"
	if got := cfg.GetWatchDebounce(); got != 300*time.Millisecond {
		t.Errorf("expected fallback debounce, got %s", got)
	}

	cfg.Context = "/proj"
	cfg.Entry = EntryConfig{Kind: host.EntryObject, Named: []host.NamedImport{
		{Name: "main", Import: "./src/main.js"},
		{Name: "other", Import: "./src/other.js"},
		{Name: "abs", Import: "/elsewhere/x.js"},
	}}
	dirs := cfg.Entry.Dirs(cfg.Context)
	if strings.Join(dirs, ",") != "/proj/src,/elsewhere" {
		t.Errorf("unexpected entry dirs %v", dirs)
	}

	po := cfg.PageOptions()
	po.PagesDirs[0] = "mutated"
	if cfg.Pages.Dirs[0] == "mutated" {
		t.Error("PageOptions must copy the directories")
	}
}

func TestLoggingConfig_Categories(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Categories: map[string]bool{"watch": false}}
	if lc.IsCategoryEnabled("watch") {
		t.Error("watch should be disabled")
	}
	if !lc.IsCategoryEnabled("build") {
		t.Error("unlisted categories are enabled")
	}
	if got := lc.Logging(); got.Level != "debug" || got.Categories["watch"] {
		t.Errorf("unexpected logging config %+v", got)
	}
}
