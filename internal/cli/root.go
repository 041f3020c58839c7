// Package cli wires the ytgrab commands: the HTTP server, a one-shot
// metadata/quality probe, and version info.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/renkel/ytgrab/internal/version"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:     "ytgrab",
	Short:   "Self-hosted video download server with dual-source quality probing",
	Version: version.Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. Serve mode logs structured JSON;
// the console writer is only used for interactive commands.
func newLogger(console bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if console {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
