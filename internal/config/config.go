// Package config loads buildpack.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/experius/pwa-buildpack/internal/globalconfig"
	"github.com/experius/pwa-buildpack/internal/host"
	"github.com/experius/pwa-buildpack/internal/host/esbuildhost"
	"github.com/experius/pwa-buildpack/internal/pagechunks"
)

// DefaultFileName is the config file looked up when none is given.
const DefaultFileName = "buildpack.yaml"

// Config holds the build configuration.
type Config struct {
	// Context is the project root; entries and pages resolve against it.
	Context string `yaml:"context"`

	Entry   EntryConfig   `yaml:"entry"`
	Output  OutputConfig  `yaml:"output"`
	Pages   PagesConfig   `yaml:"pages"`
	Bundler BundlerConfig `yaml:"bundler"`
	Watch   WatchConfig   `yaml:"watch"`

	GlobalConfig GlobalConfigStore `yaml:"global_config"`

	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig configures where and how assets are written.
type OutputConfig struct {
	Path          string `yaml:"path"`
	Filename      string `yaml:"filename"`
	ChunkFilename string `yaml:"chunk_filename"`
}

// PagesConfig configures page discovery.
type PagesConfig struct {
	Dirs             []string `yaml:"dirs"`
	ManifestFileName string   `yaml:"manifest_file_name"`
}

// BundlerConfig holds the esbuild knobs.
type BundlerConfig struct {
	Minify    bool   `yaml:"minify"`
	Target    string `yaml:"target"`
	Platform  string `yaml:"platform"`
	Sourcemap bool   `yaml:"sourcemap"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// GlobalConfigStore locates the machine-wide key-value store.
type GlobalConfigStore struct {
	Path   string `yaml:"path"`   // empty means ~/.config/pwa-buildpack.db
	Driver string `yaml:"driver"` // sqlite3 or sqlite
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Context: ".",
		Entry: EntryConfig{
			Kind:  host.EntryObject,
			Named: []host.NamedImport{{Name: host.DefaultEntryName, Import: "./src/index.js"}},
		},
		Output: OutputConfig{
			Path:          "dist",
			Filename:      "[name].js",
			ChunkFilename: "[name].chunk.js",
		},
		Pages: PagesConfig{
			Dirs:             []string{"src/pages"},
			ManifestFileName: "manifest.json",
		},
		Bundler: BundlerConfig{
			Target:   "es2020",
			Platform: "browser",
		},
		Watch: WatchConfig{Debounce: "300ms"},
		GlobalConfig: GlobalConfigStore{
			Driver: globalconfig.DriverCGO,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied, then relative paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(abs)
	switch {
	case os.IsNotExist(err):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(filepath.Dir(abs))
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("BUILDPACK_OUTPUT_PATH"); p != "" {
		c.Output.Path = p
	}
	if lvl := os.Getenv("BUILDPACK_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if p := os.Getenv("BUILDPACK_GLOBAL_CONFIG_DB"); p != "" {
		c.GlobalConfig.Path = p
	}
	if d := os.Getenv("BUILDPACK_GLOBAL_CONFIG_DRIVER"); d != "" {
		c.GlobalConfig.Driver = d
	}
}

// resolvePaths makes the context absolute against base, then the output
// path and pages directories against the context.
func (c *Config) resolvePaths(base string) {
	c.Context = absFrom(base, c.Context)
	c.Output.Path = absFrom(c.Context, c.Output.Path)
	for i, d := range c.Pages.Dirs {
		c.Pages.Dirs[i] = absFrom(c.Context, d)
	}
	if c.GlobalConfig.Path != "" {
		c.GlobalConfig.Path = absFrom(base, c.GlobalConfig.Path)
	}
	if c.Logging.File != "" {
		c.Logging.File = absFrom(base, c.Logging.File)
	}
}

func absFrom(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate reports structural problems. The entry shape is left to the
// plugins, which know which shapes they accept.
func (c *Config) Validate() error {
	if c.Context == "" {
		return fmt.Errorf("context is required")
	}
	if err := c.Entry.validate(); err != nil {
		return err
	}
	if c.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if err := host.ValidateTemplate(c.Output.Filename); err != nil {
		return fmt.Errorf("output.filename: %w", err)
	}
	if err := host.ValidateTemplate(c.Output.ChunkFilename); err != nil {
		return fmt.Errorf("output.chunk_filename: %w", err)
	}
	if len(c.Pages.Dirs) == 0 {
		return fmt.Errorf("pages.dirs must list at least one directory")
	}
	if err := c.BundlerOptions().Validate(); err != nil {
		return fmt.Errorf("bundler: %w", err)
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("watch.debounce: %w", err)
		}
	}
	switch c.GlobalConfig.Driver {
	case "", globalconfig.DriverCGO, globalconfig.DriverPureGo:
	default:
		return fmt.Errorf("invalid global_config.driver: %s (valid: %s, %s)",
			c.GlobalConfig.Driver, globalconfig.DriverCGO, globalconfig.DriverPureGo)
	}
	return c.Logging.validate()
}

// HostOptions converts the configuration to compiler options.
func (c *Config) HostOptions() host.Options {
	return host.Options{
		Context: c.Context,
		Entry:   c.Entry.Host(),
		Output: host.Output{
			Path:          c.Output.Path,
			Filename:      c.Output.Filename,
			ChunkFilename: c.Output.ChunkFilename,
		},
	}
}

// PageOptions converts the configuration to page chunk plugin options.
func (c *Config) PageOptions() pagechunks.Options {
	dirs := make([]string, len(c.Pages.Dirs))
	copy(dirs, c.Pages.Dirs)
	return pagechunks.Options{PagesDirs: dirs, ManifestFileName: c.Pages.ManifestFileName}
}

// BundlerOptions converts the bundler section.
func (c *Config) BundlerOptions() esbuildhost.BundlerOptions {
	return esbuildhost.BundlerOptions{
		Minify:    c.Bundler.Minify,
		Target:    c.Bundler.Target,
		Platform:  c.Bundler.Platform,
		Sourcemap: c.Bundler.Sourcemap,
	}
}

// GetWatchDebounce returns the watch debounce as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 300 * time.Millisecond
	}
	return d
}

// GlobalConfigPath returns the store path, defaulting to the per-user file.
func (c *Config) GlobalConfigPath() (string, error) {
	if c.GlobalConfig.Path != "" {
		return c.GlobalConfig.Path, nil
	}
	return globalconfig.DefaultDBPath()
}

// OpenGlobalConfig returns a handle to the configured store. The file is
// not opened until first use.
func (c *Config) OpenGlobalConfig() (*globalconfig.DB, error) {
	path, err := c.GlobalConfigPath()
	if err != nil {
		return nil, err
	}
	return globalconfig.NewDB(path, c.GlobalConfig.Driver)
}
