package config

import "time"

// Config is the root configuration for tap.
type Config struct {
	// Environment names the deployment environment, e.g. "production".
	// Capture is disabled when it appears in Capture.IgnoredEnvironments.
	Environment string `yaml:"environment"`

	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	Reporter  ReporterConfig  `yaml:"reporter"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address the server binds to, e.g. "127.0.0.1:8080".
	ListenAddress string `yaml:"listen_address"`

	// Upstream is the base URL traffic is proxied to. When empty the server
	// serves its built-in demo routes.
	Upstream string `yaml:"upstream"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
}

// CaptureConfig configures the capture pipeline. Pointer fields distinguish
// "not set" from an explicit zero value.
type CaptureConfig struct {
	// Enabled turns capture on or off. Default: true
	Enabled *bool `yaml:"enabled"`

	// HiddenKeys are masked wherever they appear as mapping keys in bodies,
	// query parameters and headers. Nil uses the built-in list; an explicit
	// empty list disables key masking.
	HiddenKeys []string `yaml:"hidden_keys"`

	// MaskAuthHeader masks the credentials of the Authorization header.
	// Default: true
	MaskAuthHeader *bool `yaml:"mask_auth_header"`

	// LimitRequestBodySize is the largest request body captured, in bytes.
	// Default: 4 MiB
	LimitRequestBodySize *int64 `yaml:"limit_request_body_size"`

	// LimitResponseBodySize is the largest response body captured, in
	// bytes. Defaults to LimitRequestBodySize.
	LimitResponseBodySize *int64 `yaml:"limit_response_body_size"`

	// SensitiveHeaders are always fully redacted. Nil uses the built-in list.
	SensitiveHeaders []string `yaml:"sensitive_headers"`

	// IgnoredEnvironments disable capture. Default: dev, test, testing
	IgnoredEnvironments []string `yaml:"ignored_environments"`
}

// ReporterConfig configures the asynchronous reporter.
type ReporterConfig struct {
	AsyncBuffer  int           `yaml:"async_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around storage writes.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests"`
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string       `yaml:"backend"`
	SQLite  SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver       string        `yaml:"driver"`
	Path         string        `yaml:"path"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	WALMode      *bool         `yaml:"wal_mode"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig configures record pruning.
type RetentionConfig struct {
	// Days is how long records are kept. 0 keeps records forever.
	// Default: 30
	Days *int `yaml:"days"`

	// PruneSchedule is a standard cron expression. Empty disables scheduled
	// pruning.
	PruneSchedule       string `yaml:"prune_schedule"`
	ArchiveBeforeDelete bool   `yaml:"archive_before_delete"`
	ArchivePath         string `yaml:"archive_path"`

	// MaxRecords caps the number of stored records. 0 means unlimited.
	MaxRecords int64 `yaml:"max_records"`
}

// TelemetryConfig groups logging, metrics and tracing.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level     string        `yaml:"level"`
	Format    string        `yaml:"format"`
	AddSource bool          `yaml:"add_source"`
	Redact    *bool         `yaml:"redact"`
	File      LogFileConfig `yaml:"file"`
}

// LogFileConfig enables rotating file output when Path is set.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   *bool  `yaml:"compress"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled             *bool  `yaml:"enabled"`
	Path                string `yaml:"path"`
	Namespace           string `yaml:"namespace"`
	MaxRouteCardinality int    `yaml:"max_route_cardinality"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	ServiceName string        `yaml:"service_name"`
	Exporter    string        `yaml:"exporter"`
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure"`
	Timeout     time.Duration `yaml:"timeout"`
	Sampler     string        `yaml:"sampler"`
	SampleRatio float64       `yaml:"sample_ratio"`
}

// BoolValue returns *b, or def when b is nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func boolPtr(b bool) *bool { return &b }
