package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "TAP_"

// LoadConfig loads configuration from the YAML file at path, applies
// defaults and validates the result. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML data and applies defaults. It does not validate.
// Unknown keys are rejected so typos surface instead of being ignored.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named TAP_SECTION_FIELD (for example
// TAP_SERVER_LISTEN_ADDRESS). Environment variables always take precedence
// over the file.
//
// The loading sequence is:
//  1. Load .env from the working directory, if present
//  2. Load YAML from file and apply defaults
//  3. Apply environment variable overrides
//  4. Validate the final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	LoadDotEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables that are already set are left alone. A missing file is not an
// error.
func LoadDotEnv(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load .env file", "error", err)
			return
		}
		slog.Debug("no .env file loaded", "error", err)
	}
}

// envOverrides collects parse failures so a malformed override is reported
// instead of silently ignored.
type envOverrides struct {
	errs []FieldError
}

func (o *envOverrides) fail(name, kind, val string) {
	o.errs = append(o.errs, FieldError{
		Field:   name,
		Message: fmt.Sprintf("invalid %s %q", kind, val),
	})
}

func (o *envOverrides) str(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func (o *envOverrides) duration(name string, dst *time.Duration) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		o.fail(EnvPrefix+name, "duration", val)
		return
	}
	*dst = d
}

func (o *envOverrides) integer(name string, dst *int) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		o.fail(EnvPrefix+name, "integer", val)
		return
	}
	*dst = i
}

func (o *envOverrides) optInt(name string, dst **int) {
	var i int
	if o.parseInt(name, 0, func(v int64) { i = int(v) }) {
		*dst = &i
	}
}

func (o *envOverrides) integer64(name string, dst *int64) {
	o.parseInt(name, 64, func(v int64) { *dst = v })
}

func (o *envOverrides) optInt64(name string, dst **int64) {
	var i int64
	if o.parseInt(name, 64, func(v int64) { i = v }) {
		*dst = &i
	}
}

func (o *envOverrides) parseInt(name string, bitSize int, set func(int64)) bool {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return false
	}
	i, err := strconv.ParseInt(val, 10, bitSize)
	if err != nil {
		o.fail(EnvPrefix+name, "integer", val)
		return false
	}
	set(i)
	return true
}

func (o *envOverrides) boolean(name string, dst *bool) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		o.fail(EnvPrefix+name, "boolean", val)
		return
	}
	*dst = b
}

func (o *envOverrides) optBool(name string, dst **bool) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		o.fail(EnvPrefix+name, "boolean", val)
		return
	}
	*dst = &b
}

func (o *envOverrides) float(name string, dst *float64) {
	val := os.Getenv(EnvPrefix + name)
	if val == "" {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		o.fail(EnvPrefix+name, "number", val)
		return
	}
	*dst = f
}

// list reads a comma separated list. A variable that is set but empty yields
// an empty list, which for hidden keys disables masking.
func (o *envOverrides) list(name string, dst *[]string) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return
	}
	items := []string{}
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

// ApplyEnvOverrides applies TAP_ environment variables to cfg. Malformed
// values are returned as a ValidationError and leave the field unchanged.
func ApplyEnvOverrides(cfg *Config) error {
	o := &envOverrides{}

	o.str("ENVIRONMENT", &cfg.Environment)

	// Server
	o.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	o.str("SERVER_UPSTREAM", &cfg.Server.Upstream)
	o.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	o.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	o.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	o.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	o.integer("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)

	// Capture
	o.optBool("CAPTURE_ENABLED", &cfg.Capture.Enabled)
	o.list("CAPTURE_HIDDEN_KEYS", &cfg.Capture.HiddenKeys)
	o.optBool("CAPTURE_MASK_AUTH_HEADER", &cfg.Capture.MaskAuthHeader)
	o.optInt64("CAPTURE_LIMIT_REQUEST_BODY_SIZE", &cfg.Capture.LimitRequestBodySize)
	o.optInt64("CAPTURE_LIMIT_RESPONSE_BODY_SIZE", &cfg.Capture.LimitResponseBodySize)
	o.list("CAPTURE_SENSITIVE_HEADERS", &cfg.Capture.SensitiveHeaders)
	o.list("CAPTURE_IGNORED_ENVIRONMENTS", &cfg.Capture.IgnoredEnvironments)

	// Reporter
	o.integer("REPORTER_ASYNC_BUFFER", &cfg.Reporter.AsyncBuffer)
	o.duration("REPORTER_WRITE_TIMEOUT", &cfg.Reporter.WriteTimeout)

	// Storage
	o.str("STORAGE_BACKEND", &cfg.Storage.Backend)
	o.str("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	o.str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)

	// Retention
	o.optInt("RETENTION_DAYS", &cfg.Retention.Days)
	o.str("RETENTION_PRUNE_SCHEDULE", &cfg.Retention.PruneSchedule)
	o.boolean("RETENTION_ARCHIVE_BEFORE_DELETE", &cfg.Retention.ArchiveBeforeDelete)
	o.str("RETENTION_ARCHIVE_PATH", &cfg.Retention.ArchivePath)
	o.integer64("RETENTION_MAX_RECORDS", &cfg.Retention.MaxRecords)

	// Telemetry
	o.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	o.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	o.str("TELEMETRY_LOGGING_FILE_PATH", &cfg.Telemetry.Logging.File.Path)
	o.optBool("TELEMETRY_LOGGING_REDACT", &cfg.Telemetry.Logging.Redact)
	o.optBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	o.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	o.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	o.str("TELEMETRY_TRACING_EXPORTER", &cfg.Telemetry.Tracing.Exporter)
	o.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	o.str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	o.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	if len(o.errs) > 0 {
		return fmt.Errorf("invalid environment override: %w", ValidationError{Errors: o.errs})
	}
	return nil
}
