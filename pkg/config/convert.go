package config

import (
	"strings"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report/reporter"
	"mercator-hq/tap/pkg/report/retention"
	"mercator-hq/tap/pkg/report/storage"
	"mercator-hq/tap/pkg/telemetry/logging"
	"mercator-hq/tap/pkg/telemetry/metrics"
	"mercator-hq/tap/pkg/telemetry/tracing"
)

// EnvironmentIgnored reports whether capture is switched off because the
// configured environment is listed in capture.ignored_environments.
// Environment names compare case-insensitively.
func (c *Config) EnvironmentIgnored() bool {
	for _, env := range c.Capture.IgnoredEnvironments {
		if strings.EqualFold(strings.TrimSpace(env), c.Environment) {
			return true
		}
	}
	return false
}

// CaptureOptions builds the immutable capture Config described by the
// capture section. Transformers are code, not configuration, and are passed
// in through extra.
func (c *Config) CaptureOptions(extra ...capture.Option) (*capture.Config, error) {
	cc := c.Capture

	var opts []capture.Option
	if cc.HiddenKeys != nil {
		opts = append(opts, capture.WithHiddenKeys(cc.HiddenKeys...))
	}
	if cc.MaskAuthHeader != nil {
		opts = append(opts, capture.WithMaskAuthHeader(*cc.MaskAuthHeader))
	}
	if cc.LimitRequestBodySize != nil {
		opts = append(opts, capture.WithMaxBodyBytes(*cc.LimitRequestBodySize))
	}
	if cc.LimitResponseBodySize != nil {
		opts = append(opts, capture.WithMaxResponseBodyBytes(*cc.LimitResponseBodySize))
	}
	if cc.SensitiveHeaders != nil {
		opts = append(opts, capture.WithSensitiveHeaders(cc.SensitiveHeaders...))
	}

	disabled := !BoolValue(cc.Enabled, DefaultCaptureEnabled) || c.EnvironmentIgnored()
	opts = append(opts, capture.WithDisabled(disabled))
	opts = append(opts, extra...)

	return capture.NewConfig(opts...)
}

// ReporterOptions converts the reporter section.
func (c *Config) ReporterOptions() *reporter.Config {
	r := c.Reporter
	return &reporter.Config{
		AsyncBuffer:  r.AsyncBuffer,
		WriteTimeout: r.WriteTimeout,
		Breaker: reporter.BreakerConfig{
			MaxRequests:      r.Breaker.MaxRequests,
			Interval:         r.Breaker.Interval,
			Timeout:          r.Breaker.Timeout,
			FailureThreshold: r.Breaker.FailureThreshold,
			MinRequests:      r.Breaker.MinRequests,
		},
	}
}

// RetentionOptions converts the retention section.
func (c *Config) RetentionOptions() *retention.Config {
	r := c.Retention
	days := DefaultRetentionDays
	if r.Days != nil {
		days = *r.Days
	}
	return &retention.Config{
		RetentionDays:       days,
		PruneSchedule:       r.PruneSchedule,
		ArchiveBeforeDelete: r.ArchiveBeforeDelete,
		ArchivePath:         r.ArchivePath,
		MaxRecords:          r.MaxRecords,
	}
}

// SQLiteOptions converts the storage.sqlite section.
func (c *Config) SQLiteOptions() *storage.SQLiteConfig {
	s := c.Storage.SQLite
	return &storage.SQLiteConfig{
		Path:         s.Path,
		Driver:       s.Driver,
		MaxOpenConns: s.MaxOpenConns,
		MaxIdleConns: s.MaxIdleConns,
		WALMode:      BoolValue(s.WALMode, DefaultSQLiteWALMode),
		BusyTimeout:  s.BusyTimeout,
	}
}

// LoggingOptions converts the telemetry.logging section. The capture hidden
// keys double as the sensitive log attribute keys.
func (c *Config) LoggingOptions() logging.Config {
	l := c.Telemetry.Logging
	cfg := logging.Config{
		Level:      l.Level,
		Format:     l.Format,
		AddSource:  l.AddSource,
		Redact:     BoolValue(l.Redact, DefaultLoggingRedact),
		HiddenKeys: c.Capture.HiddenKeys,
	}
	if l.File.Path != "" {
		cfg.File = &logging.FileConfig{
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   BoolValue(l.File.Compress, DefaultLogFileCompress),
		}
	}
	return cfg
}

// MetricsOptions converts the telemetry.metrics section.
func (c *Config) MetricsOptions() *metrics.Config {
	m := c.Telemetry.Metrics
	return &metrics.Config{
		Enabled:             BoolValue(m.Enabled, DefaultMetricsEnabled),
		Namespace:           m.Namespace,
		MaxRouteCardinality: m.MaxRouteCardinality,
	}
}

// TracingOptions converts the telemetry.tracing section. version is reported
// as the service version.
func (c *Config) TracingOptions(version string) *tracing.Config {
	t := c.Telemetry.Tracing
	return &tracing.Config{
		Enabled:        t.Enabled,
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		Exporter:       t.Exporter,
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		Timeout:        t.Timeout,
		Sampler:        t.Sampler,
		SampleRatio:    t.SampleRatio,
	}
}
