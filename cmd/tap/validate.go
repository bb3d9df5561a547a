package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/tap/pkg/cli"
	"mercator-hq/tap/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file with .env and TAP_ environment overrides
applied, validate it and print the effective capture settings.

Examples:
  # Validate the default tap.yaml
  tap validate

  # Validate a specific file
  tap validate --config /etc/tap/tap.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "✗ %s is invalid:\n", cfgFile)
			for _, fe := range verr.Errors {
				fmt.Fprintf(out, "  - %s: %s\n", fe.Field, fe.Message)
			}
		}
		return err
	}

	captureCfg, err := cfg.CaptureOptions()
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	fmt.Fprintf(out, "✓ %s is valid\n\n", cfgFile)
	printCaptureSummary(out, cfg)
	if !captureCfg.Enabled() {
		fmt.Fprintln(out, "\nNote: capture is disabled for this configuration.")
	}
	return nil
}

func printCaptureSummary(out io.Writer, cfg *config.Config) {
	c := cfg.Capture
	fmt.Fprintf(out, "Environment:          %s\n", cfg.Environment)
	fmt.Fprintf(out, "Capture enabled:      %t\n", config.BoolValue(c.Enabled, true) && !cfg.EnvironmentIgnored())
	fmt.Fprintf(out, "Hidden keys:          %s\n", listOrNone(c.HiddenKeys))
	fmt.Fprintf(out, "Sensitive headers:    %s\n", listOrNone(c.SensitiveHeaders))
	fmt.Fprintf(out, "Mask Authorization:   %t\n", config.BoolValue(c.MaskAuthHeader, true))
	fmt.Fprintf(out, "Request body limit:   %s\n", limitString(c.LimitRequestBodySize))
	if c.LimitResponseBodySize != nil {
		fmt.Fprintf(out, "Response body limit:  %s\n", limitString(c.LimitResponseBodySize))
	} else {
		fmt.Fprintln(out, "Response body limit:  same as request")
	}
	fmt.Fprintf(out, "Storage:              %s\n", cfg.Storage.Backend)
	if cfg.Server.Upstream != "" {
		fmt.Fprintf(out, "Upstream:             %s\n", cfg.Server.Upstream)
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func limitString(n *int64) string {
	if n == nil {
		return "default"
	}
	return fmt.Sprintf("%d bytes", *n)
}
