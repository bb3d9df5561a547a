package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{
			name:   "listen address without port",
			modify: func(c *Config) { c.Server.ListenAddress = "localhost" },
			field:  "server.listen_address",
		},
		{
			name:   "relative upstream",
			modify: func(c *Config) { c.Server.Upstream = "/api" },
			field:  "server.upstream",
		},
		{
			name:   "upstream with unsupported scheme",
			modify: func(c *Config) { c.Server.Upstream = "ftp://example.com" },
			field:  "server.upstream",
		},
		{
			name: "negative response limit",
			modify: func(c *Config) {
				n := int64(-5)
				c.Capture.LimitResponseBodySize = &n
			},
			field: "capture.limit_response_body_size",
		},
		{
			name:   "blank hidden key",
			modify: func(c *Config) { c.Capture.HiddenKeys = []string{"password", " "} },
			field:  "capture.hidden_keys[1]",
		},
		{
			name:   "breaker threshold above one",
			modify: func(c *Config) { c.Reporter.Breaker.FailureThreshold = 1.5 },
			field:  "reporter.breaker.failure_threshold",
		},
		{
			name:   "unknown sqlite driver",
			modify: func(c *Config) { c.Storage.SQLite.Driver = "pgx" },
			field:  "storage.sqlite.driver",
		},
		{
			name:   "idle conns above open conns",
			modify: func(c *Config) { c.Storage.SQLite.MaxIdleConns = 20 },
			field:  "storage.sqlite.max_idle_conns",
		},
		{
			name:   "bad cron expression",
			modify: func(c *Config) { c.Retention.PruneSchedule = "every night" },
			field:  "retention.prune_schedule",
		},
		{
			name: "negative retention days",
			modify: func(c *Config) {
				d := -1
				c.Retention.Days = &d
			},
			field: "retention.days",
		},
		{
			name:   "unknown log level",
			modify: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "unknown log format",
			modify: func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			field:  "telemetry.logging.format",
		},
		{
			name:   "metrics path without slash",
			modify: func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			field:  "telemetry.metrics.path",
		},
		{
			name: "unknown tracing exporter",
			modify: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Exporter = "zipkin"
			},
			field: "telemetry.tracing.exporter",
		},
		{
			name: "tracing ratio out of range",
			modify: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Sampler = "ratio"
				c.Telemetry.Tracing.SampleRatio = 2
			},
			field: "telemetry.tracing.sampler",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !verr.HasField(tt.field) {
				t.Errorf("expected error for %s, got %v", tt.field, verr)
			}
		})
	}
}

func TestValidate_MemoryBackendIgnoresSQLite(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Storage.SQLite.Driver = "unused"

	if err := Validate(cfg); err != nil {
		t.Errorf("expected memory backend to skip sqlite checks: %v", err)
	}
}

func TestValidate_TracingDisabledSkipsChecks(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Telemetry.Tracing.Exporter = "zipkin"

	if err := Validate(cfg); err != nil {
		t.Errorf("expected disabled tracing to skip exporter checks: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("unexpected single error message %q", got)
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}
	msg := multi.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "  - b: worse") {
		t.Errorf("unexpected multi error message %q", msg)
	}

	if got := (ValidationError{}).Error(); got != "configuration validation failed" {
		t.Errorf("unexpected empty error message %q", got)
	}
}
