// Package metrics exposes Prometheus metrics for captured traffic.
//
// # Metrics
//
//   - requests_total, request_duration_seconds: HTTP traffic by method,
//     route and status code
//   - bodies_total, body_size_bytes: capture outcome per direction
//   - transform_failures_total: transformer errors and panics
//   - sessions_total: sessions by terminal state
//   - reports_total, report_duration_seconds, report_queue_depth: record
//     persistence
//
// Collector implements capture.Observer and reporter.Observer, so it can be
// handed directly to the capture hook and the reporter.
//
// # Usage
//
//	collector := metrics.NewCollector(&metrics.Config{Enabled: true}, nil)
//	hook := httpcapture.NewHook(source, rep, httpcapture.WithObserver(collector))
//	router.Handle("/metrics", collector.Handler())
//
// Route labels are bounded by a cardinality limiter; routes beyond the
// limit are reported as "other".
package metrics
