package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tap/pkg/cli"
	"mercator-hq/tap/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tap",
	Short: "Tap - HTTP capture and sanitization middleware",
	Long: `Tap captures HTTP request/response exchanges, masks sensitive values
and stores the sanitized records for later inspection.

It provides:
  - A capture server that proxies to an upstream or serves demo routes
  - Key, header and Authorization masking with body size limits
  - SQLite or in-memory record storage with scheduled retention
  - JSON and CSV export of stored captures`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tap.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads cfgFile with .env and TAP_ environment overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}
