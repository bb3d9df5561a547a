// Package telemetry groups the observability packages used by tap.
//
// # Components
//
//   - logging: structured slog logging with attribute redaction and
//     optional file rotation
//   - metrics: Prometheus collectors for traffic, capture outcomes and
//     record persistence
//   - tracing: OpenTelemetry spans with W3C trace context propagation
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.New(cfg.LoggingOptions())
//	if err != nil {
//		return err
//	}
//	slog.SetDefault(logger.Logger)
//
//	tracer, err := tracing.New(cfg.TracingOptions(version))
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(ctx)
//
//	collector := metrics.NewCollector(cfg.MetricsOptions(), nil)
//
// # Redaction
//
// Log attributes whose key is a hidden capture key or a sensitive header are
// replaced with the capture redaction marker, and bearer tokens inside string
// values are masked:
//
//	Authorization: Bearer sk-abc123 → Bearer ***
package telemetry
