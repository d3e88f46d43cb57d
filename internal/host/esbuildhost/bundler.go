package esbuildhost

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// BundlerOptions are the esbuild knobs exposed through configuration.
type BundlerOptions struct {
	Minify    bool
	Target    string // es2015 ... es2022, esnext
	Platform  string // browser, node, neutral
	Sourcemap bool
}

// DefaultBundlerOptions matches the defaults of the build configuration file.
func DefaultBundlerOptions() BundlerOptions {
	return BundlerOptions{Target: "es2020", Platform: "browser"}
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var platforms = map[string]api.Platform{
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

// Validate reports unknown targets or platforms. Empty values mean default.
func (b BundlerOptions) Validate() error {
	if _, err := b.target(); err != nil {
		return err
	}
	_, err := b.platform()
	return err
}

func (b BundlerOptions) target() (api.Target, error) {
	if b.Target == "" {
		return api.ES2020, nil
	}
	t, ok := targets[strings.ToLower(b.Target)]
	if !ok {
		return 0, fmt.Errorf("unknown bundler target %q", b.Target)
	}
	return t, nil
}

func (b BundlerOptions) platform() (api.Platform, error) {
	if b.Platform == "" {
		return api.PlatformBrowser, nil
	}
	p, ok := platforms[strings.ToLower(b.Platform)]
	if !ok {
		return 0, fmt.Errorf("unknown bundler platform %q", b.Platform)
	}
	return p, nil
}

// apply copies the knobs onto esbuild build options.
func (b BundlerOptions) apply(o *api.BuildOptions) error {
	t, err := b.target()
	if err != nil {
		return err
	}
	p, err := b.platform()
	if err != nil {
		return err
	}
	o.Target = t
	o.Platform = p
	o.MinifyWhitespace = b.Minify
	o.MinifyIdentifiers = b.Minify
	o.MinifySyntax = b.Minify
	if b.Sourcemap {
		o.Sourcemap = api.SourceMapLinked
	} else {
		o.Sourcemap = api.SourceMapNone
	}
	return nil
}
