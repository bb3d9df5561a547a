package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/tap/pkg/telemetry/logging"
	"mercator-hq/tap/pkg/telemetry/tracing"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// HasField reports whether a field error exists for field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates cfg and returns a ValidationError listing every problem,
// or nil when cfg is valid. Defaults should be applied first.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateCapture(&cfg.Capture)...)
	errs = append(errs, validateReporter(&cfg.Reporter)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(s.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("must be host:port: %v", err),
		})
	}

	if s.Upstream != "" {
		u, err := url.Parse(s.Upstream)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   "server.upstream",
				Message: "must be an absolute http or https URL",
			})
		}
	}

	if s.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if s.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "must not be negative"})
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must not be negative"})
	}
	if s.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must not be negative"})
	}

	return errs
}

func validateCapture(c *CaptureConfig) []FieldError {
	var errs []FieldError

	if c.LimitRequestBodySize != nil && *c.LimitRequestBodySize < 0 {
		errs = append(errs, FieldError{
			Field:   "capture.limit_request_body_size",
			Message: fmt.Sprintf("must be >= 0, got %d", *c.LimitRequestBodySize),
		})
	}
	if c.LimitResponseBodySize != nil && *c.LimitResponseBodySize < 0 {
		errs = append(errs, FieldError{
			Field:   "capture.limit_response_body_size",
			Message: fmt.Sprintf("must be >= 0, got %d", *c.LimitResponseBodySize),
		})
	}

	for i, key := range c.HiddenKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("capture.hidden_keys[%d]", i),
				Message: "must not be empty",
			})
		}
	}
	for i, name := range c.SensitiveHeaders {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("capture.sensitive_headers[%d]", i),
				Message: "must not be empty",
			})
		}
	}

	return errs
}

func validateReporter(r *ReporterConfig) []FieldError {
	var errs []FieldError

	if r.AsyncBuffer < 0 {
		errs = append(errs, FieldError{Field: "reporter.async_buffer", Message: "must not be negative"})
	}
	if r.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "reporter.write_timeout", Message: "must not be negative"})
	}
	if r.Breaker.FailureThreshold < 0 || r.Breaker.FailureThreshold > 1 {
		errs = append(errs, FieldError{
			Field:   "reporter.breaker.failure_threshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", r.Breaker.FailureThreshold),
		})
	}
	if r.Breaker.Interval < 0 {
		errs = append(errs, FieldError{Field: "reporter.breaker.interval", Message: "must not be negative"})
	}
	if r.Breaker.Timeout < 0 {
		errs = append(errs, FieldError{Field: "reporter.breaker.timeout", Message: "must not be negative"})
	}

	return errs
}

func validateStorage(s *StorageConfig) []FieldError {
	var errs []FieldError

	switch s.Backend {
	case "memory":
	case "sqlite":
		if s.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "is required for the sqlite backend"})
		}
		if s.SQLite.Driver != "sqlite3" && s.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("must be one of: sqlite3, sqlite (got %q)", s.SQLite.Driver),
			})
		}
		if s.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must not be negative"})
		}
		if s.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_idle_conns", Message: "must not be negative"})
		}
		if s.SQLite.MaxOpenConns > 0 && s.SQLite.MaxIdleConns > s.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.max_idle_conns",
				Message: "must not exceed max_open_conns",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("must be one of: sqlite, memory (got %q)", s.Backend),
		})
	}

	return errs
}

func validateRetention(r *RetentionConfig) []FieldError {
	var errs []FieldError

	if r.Days != nil && *r.Days < 0 {
		errs = append(errs, FieldError{Field: "retention.days", Message: "must not be negative"})
	}
	if r.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "retention.max_records", Message: "must not be negative"})
	}
	if r.PruneSchedule != "" {
		if _, err := cron.ParseStandard(r.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if r.ArchiveBeforeDelete && r.ArchivePath == "" {
		errs = append(errs, FieldError{
			Field:   "retention.archive_path",
			Message: "is required when archive_before_delete is set",
		})
	}

	return errs
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError

	if _, err := logging.ParseLevel(t.Logging.Level); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: err.Error()})
	}
	switch strings.ToLower(t.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of: json, text, console (got %q)", t.Logging.Format),
		})
	}

	if BoolValue(t.Metrics.Enabled, DefaultMetricsEnabled) && !strings.HasPrefix(t.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}
	if t.Metrics.MaxRouteCardinality < 0 {
		errs = append(errs, FieldError{Field: "telemetry.metrics.max_route_cardinality", Message: "must not be negative"})
	}

	if t.Tracing.Enabled {
		switch t.Tracing.Exporter {
		case "otlp":
			if t.Tracing.Endpoint == "" {
				errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "is required for the otlp exporter"})
			}
		case "none":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("must be one of: otlp, none (got %q)", t.Tracing.Exporter),
			})
		}
		if err := tracing.ValidateSampler(t.Tracing.Sampler, t.Tracing.SampleRatio); err != nil {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: err.Error()})
		}
	}

	return errs
}
