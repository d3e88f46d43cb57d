package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/experius/pwa-buildpack/internal/host"
	"github.com/experius/pwa-buildpack/internal/host/esbuildhost"
	"github.com/experius/pwa-buildpack/internal/pagechunks"
)

// buildCmd runs one compilation
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Bundle the project once",
	Long: `Bundles every configured entry, splits each page into its own chunk,
writes the assets to the output directory and, when pages.manifest_file_name
is set, a manifest mapping page names to chunk files.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, plugin, err := newCompiler()
	if err != nil {
		return err
	}
	stats, err := c.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(stats, plugin.Manifest()))
	return nil
}

// newCompiler wires the page chunk plugin into an esbuild compiler built
// from the loaded configuration.
func newCompiler() (*esbuildhost.Compiler, *pagechunks.Plugin, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	plugin, err := pagechunks.New(cfg.PageOptions())
	if err != nil {
		return nil, nil, err
	}
	c, err := esbuildhost.New(cfg.HostOptions(), plugin)
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.WithBundler(cfg.BundlerOptions()); err != nil {
		return nil, nil, err
	}
	if outputFS != nil {
		c.WithOutputFS(outputFS)
	}
	logger.Debug("compiler ready",
		zap.Strings("pages_dirs", cfg.Pages.Dirs),
		zap.String("output", cfg.Output.Path))
	return c, plugin, nil
}

// buildOnce is the watch-mode build step.
func buildOnce(c *esbuildhost.Compiler, plugin *pagechunks.Plugin, out io.Writer) func(context.Context) error {
	return func(ctx context.Context) error {
		stats, err := c.Run(ctx)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			return err
		}
		fmt.Fprintln(out, renderSummary(stats, plugin.Manifest()))
		return nil
	}
}

func renderSummary(stats *host.Stats, manifest pagechunks.Manifest) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Built %d assets in %s", len(stats.Assets), stats.Duration.Round(1e6))))
	b.WriteString("\n")

	rows := make([][2]string, 0, len(stats.Assets))
	for _, a := range stats.Assets {
		rows = append(rows, [2]string{a, labelStyle.Render(assetKind(stats, a))})
	}
	b.WriteString(boxStyle.Render(table(rows)))

	if len(manifest) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Pages"))
		b.WriteString("\n")
		prow := make([][2]string, 0, len(manifest))
		for _, name := range manifest.Names() {
			prow = append(prow, [2]string{name, manifest[name]})
		}
		b.WriteString(table(prow))
	}
	return b.String()
}

func assetKind(stats *host.Stats, asset string) string {
	for _, ch := range stats.Chunks {
		for _, f := range ch.Files {
			if f != asset {
				continue
			}
			switch {
			case ch.Initial:
				return "entry " + ch.Name
			case ch.Name != "":
				return "chunk " + ch.Name
			default:
				return "shared"
			}
		}
	}
	return "asset"
}
