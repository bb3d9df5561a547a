// Package tracing wires OpenTelemetry tracing into the HTTP server.
//
// New builds a TracerProvider with a parent-based sampler and, when
// configured, an OTLP gRPC exporter. Middleware extracts W3C trace context
// from incoming headers, starts a server span per request, and stores the
// trace and span IDs for logging. The capture hook reads the same span
// context, so every capture record carries trace_id and span_id.
//
// With Exporter "none" spans are still created and sampled, which gives
// records and logs correlatable IDs without running a collector.
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    exporter: otlp
//	    endpoint: localhost:4317
//	    sampler: ratio
//	    sample_ratio: 0.1
package tracing
