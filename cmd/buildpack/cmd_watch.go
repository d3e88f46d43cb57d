package main

import (
	"github.com/spf13/cobra"

	"github.com/experius/pwa-buildpack/internal/pagechunks"
	"github.com/experius/pwa-buildpack/internal/watch"
)

// watchCmd rebuilds on change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Bundle the project and rebuild whenever sources change",
	Long: `Runs a build, then watches the pages directories and the directories
holding the entry modules. Every burst of changes triggers one rebuild,
which rescans the pages. Stops on Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, plugin, err := newCompiler()
	if err != nil {
		return err
	}

	dirs := append([]string{}, cfg.Pages.Dirs...)
	dirs = append(dirs, cfg.Entry.Dirs(cfg.Context)...)
	exts := append([]string{".css", ".json"}, pagechunks.ModuleExtensions...)

	w, err := watch.New(watch.Options{
		Dirs:       dirs,
		Ignore:     []string{cfg.Output.Path},
		Extensions: exts,
		Debounce:   cfg.GetWatchDebounce(),
	}, buildOnce(c, plugin, cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
