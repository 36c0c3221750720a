// Command aio-demo exercises the event loop end to end: a timer, a
// cross-thread wake-up, a file-to-file pipeline, a directory watch, and
// a plugin load, each as its own cobra subcommand. Grounded on the
// teacher's cmd/ublk-mem, generalized from a single-purpose flag.Parse
// driver to a cobra command tree the way rclone and moby structure
// their CLIs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/sanerun/aio/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "aio-demo",
	Short: "Exercises the aio event loop's end-to-end scenarios",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := logging.DefaultConfig()
		if verbose {
			cfg.Level = zapcore.DebugLevel
		}
		logger, err := logging.New(cfg)
		if err != nil {
			return fmt.Errorf("logging init: %w", err)
		}
		logging.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "aio-demo:", err)
		os.Exit(1)
	}
	logging.Default().Sync()
}
