package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normanking/lipsync/internal/config"
	"github.com/normanking/lipsync/internal/logging"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "lipsync",
	Short: "Lip-sync and idle motion for Live2D characters",
	Long: `lipsync animates a Live2D character's mouth from vowel timelines
(text-to-speech output) or from live microphone audio, and keeps the
character alive with blinking, gaze, wind and breathing while idle.

The serve command hosts the control API and the websocket the viewer
page connects to; the other commands work on clip files offline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		printError("lipsync", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.lipsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, error")
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}

// loadConfig reads the configuration file, creating it with defaults when
// missing.
func loadConfig() (*config.Store, error) {
	store, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return store, nil
}

// quietLogger logs warnings and errors to stderr, for the offline commands.
func quietLogger() (*logging.Logger, error) {
	level := logging.LevelWarn
	if logLevel != "" {
		level = logging.LogLevel(logLevel)
	}
	return logging.New(&logging.Config{
		Level:      level,
		MaxHistory: 100,
		Console:    true,
		Out:        os.Stderr,
	})
}
