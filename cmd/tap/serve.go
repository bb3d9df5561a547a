package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/capture/httpcapture"
	"mercator-hq/tap/pkg/cli"
	"mercator-hq/tap/pkg/config"
	"mercator-hq/tap/pkg/report"
	"mercator-hq/tap/pkg/report/reporter"
	"mercator-hq/tap/pkg/report/retention"
	"mercator-hq/tap/pkg/server"
	"mercator-hq/tap/pkg/telemetry/health"
	"mercator-hq/tap/pkg/telemetry/logging"
	"mercator-hq/tap/pkg/telemetry/metrics"
	"mercator-hq/tap/pkg/telemetry/tracing"
)

const telemetryShutdownTimeout = 5 * time.Second

var serveFlags struct {
	listenAddress string
	upstream      string
	logLevel      string
	watch         bool
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture server",
	Long: `Start the capture server with the specified configuration.

Every request outside /health, /ready, /version and the metrics path is
captured, sanitized and stored. With server.upstream set, traffic is proxied
to the upstream; otherwise the built-in demo routes are served.

Examples:
  # Start with default config
  tap serve

  # Proxy to a local application
  tap serve --upstream http://localhost:3000

  # Reload capture settings when the config file changes
  tap serve --config /etc/tap/tap.yaml --watch

  # Validate config without starting the server
  tap serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVarP(&serveFlags.upstream, "upstream", "u", "", "override upstream URL")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVarP(&serveFlags.watch, "watch", "w", false, "reload capture settings when the config file changes")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	cfg := config.MustGetConfig()

	// Apply flag overrides
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.upstream != "" {
		cfg.Server.Upstream = serveFlags.upstream
	}
	if serveFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = serveFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	out := cmd.OutOrStdout()
	if serveFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	fmt.Fprintf(out, "tap v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	tracer, err := tracing.New(cfg.TracingOptions(Version))
	if err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var collector *metrics.Collector
	if metricsCfg := cfg.MetricsOptions(); metricsCfg.Enabled {
		collector = metrics.NewCollector(metricsCfg, nil)
	}

	slog.Info("initializing capture storage", "backend", cfg.Storage.Backend)
	store, err := openStorage(cfg)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer store.Close()

	var reporterOpts []reporter.Option
	if collector != nil {
		reporterOpts = append(reporterOpts, reporter.WithObserver(collector))
	}
	rep := reporter.New(store, cfg.ReporterOptions(), reporterOpts...)
	defer rep.Close()
	fmt.Fprintf(out, "✓ Capture store initialized (%s)\n", cfg.Storage.Backend)

	if cfg.Retention.PruneSchedule != "" {
		pruner := retention.NewPruner(store, cfg.RetentionOptions())
		if err := pruner.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				slog.Debug("retention scheduler started", "next_pruning", next)
			}
		}
	}

	captureCfg, err := cfg.CaptureOptions()
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	source := capture.NewAtomicSource(captureCfg)
	if cfg.EnvironmentIgnored() {
		slog.Info("capture disabled for environment", "environment", cfg.Environment)
	}

	if serveFlags.watch {
		reloader := config.NewReloader(cfgFile, source,
			config.WithReloadLogger(logger.With("component", "config.reloader")),
		)
		go func() {
			if err := reloader.Run(ctx); err != nil {
				slog.Warn("config watcher stopped", "error", err)
			}
		}()
		defer func() { _ = reloader.Stop() }()
	}

	hookOpts := server.HookOptions(&cfg.Server)
	if collector != nil {
		hookOpts = append(hookOpts, httpcapture.WithObserver(collector))
	}
	hook := httpcapture.NewHook(source, rep, hookOpts...)

	srvOpts := []server.Option{
		server.WithHealth(newChecker(store, rep)),
		server.WithVersion(health.NewVersionInfo(Version, GitCommit, BuildDate)),
	}
	if collector != nil {
		srvOpts = append(srvOpts, server.WithMetrics(collector, cfg.Telemetry.Metrics.Path))
	}
	if tracer.Enabled() {
		srvOpts = append(srvOpts, server.WithTracer(tracer))
	}

	srv, err := server.New(&cfg.Server, hook, srvOpts...)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Server.Upstream != "" {
		fmt.Fprintf(out, "✓ Proxying to %s\n", cfg.Server.Upstream)
	} else {
		fmt.Fprintln(out, "✓ Serving demo routes (/hello, /echo, /users/{id}, /stream)")
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// newChecker registers the readiness checks for the capture pipeline.
func newChecker(store report.Storage, rep *reporter.Reporter) *health.Checker {
	checker := health.New(0)
	checker.Register("storage", func(ctx context.Context) error {
		_, err := store.Count(ctx, &report.Query{})
		return err
	})
	checker.Register("reporter", func(context.Context) error {
		if rep.BreakerState() == gobreaker.StateOpen {
			return errors.New("storage circuit breaker is open")
		}
		return nil
	})
	return checker
}
