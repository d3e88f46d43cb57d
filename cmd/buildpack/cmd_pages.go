package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/experius/pwa-buildpack/internal/jsparse"
	"github.com/experius/pwa-buildpack/internal/pagechunks"
)

// pagesCmd lists what a build would split out
var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List the pages a build would turn into chunks",
	Long: `Scans the configured pages directories without bundling. Shows each
page with its source file, the pages skipped because an earlier directory
already provides the name, and pages without a default export.`,
	Args: cobra.NoArgs,
	RunE: runPages,
}

func runPages(cmd *cobra.Command, args []string) error {
	res, err := pagechunks.ScanDirs(cfg.Pages.Dirs)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	rows := make([][2]string, 0, len(res.Pages))
	var missing []string
	for _, p := range res.Pages {
		status := p.SourcePath
		ok, err := hasDefaultExport(cmd, p)
		switch {
		case err != nil:
			status += " " + warnStyle.Render("("+err.Error()+")")
		case !ok:
			status += " " + warnStyle.Render("(no default export)")
			missing = append(missing, p.Name)
		}
		rows = append(rows, [2]string{p.Name, status})
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d pages", len(res.Pages))))
	fmt.Fprintln(out, boxStyle.Render(table(rows)))

	if len(res.Duplicates) > 0 {
		fmt.Fprintln(out, warnStyle.Render("Skipped duplicates"))
		dups := make([][2]string, 0, len(res.Duplicates))
		for _, d := range res.Duplicates {
			dups = append(dups, [2]string{d.Name, labelStyle.Render(d.Skipped + " (kept " + d.Kept + ")")})
		}
		fmt.Fprintln(out, table(dups))
	}
	if len(missing) > 0 {
		fmt.Fprintln(out, warnStyle.Render("Pages without a default export load as empty modules: "+strings.Join(missing, ", ")))
	}
	return nil
}

func hasDefaultExport(cmd *cobra.Command, p pagechunks.Page) (bool, error) {
	src, err := os.ReadFile(p.SourcePath)
	if err != nil {
		return false, err
	}
	mod, err := jsparse.Parse(cmd.Context(), p.SourcePath, src)
	if err != nil {
		return false, err
	}
	return mod.DefaultExport, nil
}
