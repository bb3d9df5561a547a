package config

import (
	"time"

	"mercator-hq/tap/pkg/capture"
)

// Default values for configuration fields.
const (
	DefaultEnvironment = "production"

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Capture defaults
	DefaultCaptureEnabled        = true
	DefaultCaptureMaskAuthHeader = true
	DefaultLimitRequestBodySize  = capture.DefaultMaxBodyBytes

	// Reporter defaults
	DefaultReporterAsyncBuffer     = 1000
	DefaultReporterWriteTimeout    = 5 * time.Second
	DefaultBreakerMaxRequests      = uint32(5)
	DefaultBreakerInterval         = 30 * time.Second
	DefaultBreakerTimeout          = 60 * time.Second
	DefaultBreakerFailureThreshold = 0.8
	DefaultBreakerMinRequests      = uint32(5)

	// Storage defaults
	DefaultStorageBackend     = "sqlite"
	DefaultSQLiteDriver       = "sqlite3"
	DefaultSQLitePath         = "data/captures.db"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second

	// Retention defaults
	DefaultRetentionDays        = 30
	DefaultRetentionSchedule    = "0 3 * * *"
	DefaultRetentionArchivePath = "data/archives/"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultLoggingRedact       = true
	DefaultLogFileMaxSizeMB    = 25
	DefaultLogFileMaxBackups   = 10
	DefaultLogFileMaxAgeDays   = 14
	DefaultLogFileCompress     = true
	DefaultMetricsEnabled      = true
	DefaultMetricsPath         = "/metrics"
	DefaultMetricsNamespace    = "tap"
	DefaultMaxRouteCardinality = 1000
	DefaultTracingServiceName  = "tap"
	DefaultTracingExporter     = "otlp"
	DefaultTracingEndpoint     = "localhost:4317"
	DefaultTracingTimeout      = 10 * time.Second
	DefaultTracingSampler      = "always"
	DefaultTracingSampleRatio  = 1.0
)

// DefaultIgnoredEnvironments returns the environments in which capture is
// disabled unless configured otherwise.
func DefaultIgnoredEnvironments() []string {
	return []string{"dev", "test", "testing"}
}

// NewDefaultConfig returns a Config with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg with its default value.
// Explicitly set values, including explicit empty lists, are kept.
func ApplyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}

	applyServerDefaults(&cfg.Server)
	applyCaptureDefaults(&cfg.Capture)
	applyReporterDefaults(&cfg.Reporter)
	applyStorageDefaults(&cfg.Storage)
	applyRetentionDefaults(&cfg.Retention)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
}

func applyCaptureDefaults(c *CaptureConfig) {
	if c.Enabled == nil {
		c.Enabled = boolPtr(DefaultCaptureEnabled)
	}
	if c.HiddenKeys == nil {
		c.HiddenKeys = capture.DefaultHiddenKeys()
	}
	if c.MaskAuthHeader == nil {
		c.MaskAuthHeader = boolPtr(DefaultCaptureMaskAuthHeader)
	}
	if c.LimitRequestBodySize == nil {
		limit := DefaultLimitRequestBodySize
		c.LimitRequestBodySize = &limit
	}
	// LimitResponseBodySize stays nil so it follows the request limit,
	// including a request limit set later from the environment.
	if c.SensitiveHeaders == nil {
		c.SensitiveHeaders = capture.DefaultSensitiveHeaders()
	}
	if c.IgnoredEnvironments == nil {
		c.IgnoredEnvironments = DefaultIgnoredEnvironments()
	}
}

func applyReporterDefaults(r *ReporterConfig) {
	if r.AsyncBuffer == 0 {
		r.AsyncBuffer = DefaultReporterAsyncBuffer
	}
	if r.WriteTimeout == 0 {
		r.WriteTimeout = DefaultReporterWriteTimeout
	}
	if r.Breaker.MaxRequests == 0 {
		r.Breaker.MaxRequests = DefaultBreakerMaxRequests
	}
	if r.Breaker.Interval == 0 {
		r.Breaker.Interval = DefaultBreakerInterval
	}
	if r.Breaker.Timeout == 0 {
		r.Breaker.Timeout = DefaultBreakerTimeout
	}
	if r.Breaker.FailureThreshold == 0 {
		r.Breaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if r.Breaker.MinRequests == 0 {
		r.Breaker.MinRequests = DefaultBreakerMinRequests
	}
}

func applyStorageDefaults(s *StorageConfig) {
	if s.Backend == "" {
		s.Backend = DefaultStorageBackend
	}
	if s.SQLite.Driver == "" {
		s.SQLite.Driver = DefaultSQLiteDriver
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultSQLitePath
	}
	if s.SQLite.MaxOpenConns == 0 {
		s.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if s.SQLite.MaxIdleConns == 0 {
		s.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if s.SQLite.WALMode == nil {
		s.SQLite.WALMode = boolPtr(DefaultSQLiteWALMode)
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

func applyRetentionDefaults(r *RetentionConfig) {
	if r.Days == nil {
		days := DefaultRetentionDays
		r.Days = &days
	}
	if r.PruneSchedule == "" {
		r.PruneSchedule = DefaultRetentionSchedule
	}
	if r.ArchivePath == "" {
		r.ArchivePath = DefaultRetentionArchivePath
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Logging.Redact == nil {
		t.Logging.Redact = boolPtr(DefaultLoggingRedact)
	}
	if t.Logging.File.MaxSizeMB == 0 {
		t.Logging.File.MaxSizeMB = DefaultLogFileMaxSizeMB
	}
	if t.Logging.File.MaxBackups == 0 {
		t.Logging.File.MaxBackups = DefaultLogFileMaxBackups
	}
	if t.Logging.File.MaxAgeDays == 0 {
		t.Logging.File.MaxAgeDays = DefaultLogFileMaxAgeDays
	}
	if t.Logging.File.Compress == nil {
		t.Logging.File.Compress = boolPtr(DefaultLogFileCompress)
	}

	if t.Metrics.Enabled == nil {
		t.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.MaxRouteCardinality == 0 {
		t.Metrics.MaxRouteCardinality = DefaultMaxRouteCardinality
	}

	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
}
