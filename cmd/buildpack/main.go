package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/experius/pwa-buildpack/internal/config"
	"github.com/experius/pwa-buildpack/internal/host"
	"github.com/experius/pwa-buildpack/internal/logging"
	"github.com/experius/pwa-buildpack/internal/tempfile"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger

	// outputFS overrides where build assets go; nil writes to disk.
	outputFS host.OutputFS
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "buildpack",
	Short: "pwa-buildpack - page chunk bundling for progressive web apps",
	Long: `buildpack bundles a PWA with esbuild and gives every module in the
configured pages directories its own lazily loaded chunk, plus a manifest
mapping page names to chunk files.

Configuration is read from buildpack.yaml in the current directory unless
--config points elsewhere.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.Logging.Logging()); err != nil {
			return err
		}
		logger = logging.Root()
		logger.Debug("configuration loaded",
			zap.String("config", cfgFile),
			zap.String("context", cfg.Context))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultFileName, "Path to the build configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configDelCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configClearCmd)
	configCmd.AddCommand(configEditCmd)

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pagesCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	intr := tempfile.ReleaseOnSignal(context.Background())
	err := rootCmd.ExecuteContext(intr.Context())
	intr.Stop()
	tempfile.Default.Release()
	logging.Sync()

	if sig := intr.Signal(); sig != nil {
		os.Exit(exitCode(sig))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// exitCode follows the shell convention of 128 plus the signal number.
func exitCode(sig os.Signal) int {
	if sig == syscall.SIGTERM {
		return 143
	}
	return 130
}
