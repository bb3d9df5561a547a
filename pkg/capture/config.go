package capture

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// DefaultMaxBodyBytes is the default request body limit (4 MiB).
const DefaultMaxBodyBytes int64 = 4 * 1024 * 1024

// DefaultSensitiveHeaders returns the headers always fully redacted.
func DefaultSensitiveHeaders() []string {
	return []string{"x-api-key"}
}

// Config holds capture settings. It is immutable once built by NewConfig and
// may be shared by any number of sessions.
type Config struct {
	masker               *KeyMasker
	maskAuthHeader       bool
	maxBodyBytes         int64
	maxResponseBodyBytes int64
	responseLimitSet     bool
	requestTransformer   Transformer
	responseTransformer  Transformer
	customRequest        bool
	customResponse       bool
	sensitiveHeaders     map[string]struct{}
	disabled             bool
}

// Option configures a Config.
type Option func(*Config)

// WithHiddenKeys replaces the hidden key set. Passing no keys disables key
// masking.
func WithHiddenKeys(keys ...string) Option {
	return func(c *Config) {
		c.masker = NewKeyMasker(keys)
	}
}

// WithMaskAuthHeader toggles Authorization header masking.
func WithMaskAuthHeader(enabled bool) Option {
	return func(c *Config) {
		c.maskAuthHeader = enabled
	}
}

// WithMaxBodyBytes sets the request body limit. It is also the response body
// limit unless WithMaxResponseBodyBytes is given.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Config) {
		c.maxBodyBytes = n
	}
}

// WithMaxResponseBodyBytes sets the response body limit.
func WithMaxResponseBodyBytes(n int64) Option {
	return func(c *Config) {
		c.maxResponseBodyBytes = n
		c.responseLimitSet = true
	}
}

// WithRequestTransformer replaces the request body transformer. A nil fn
// restores DefaultTransformer.
func WithRequestTransformer(fn Transformer) Option {
	return func(c *Config) {
		c.requestTransformer = fn
		c.customRequest = fn != nil
	}
}

// WithResponseTransformer replaces the response body transformer. A nil fn
// restores DefaultTransformer.
func WithResponseTransformer(fn Transformer) Option {
	return func(c *Config) {
		c.responseTransformer = fn
		c.customResponse = fn != nil
	}
}

// WithSensitiveHeaders replaces the set of headers that are always fully
// redacted.
func WithSensitiveHeaders(names ...string) Option {
	return func(c *Config) {
		c.sensitiveHeaders = make(map[string]struct{}, len(names))
		for _, name := range names {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				c.sensitiveHeaders[name] = struct{}{}
			}
		}
	}
}

// WithDisabled turns capture off entirely. Sessions are not opened for a
// disabled Config.
func WithDisabled(disabled bool) Option {
	return func(c *Config) {
		c.disabled = disabled
	}
}

// NewConfig builds an immutable Config from the defaults and opts.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{
		masker:         NewKeyMasker(DefaultHiddenKeys()),
		maskAuthHeader: true,
		maxBodyBytes:   DefaultMaxBodyBytes,
	}
	WithSensitiveHeaders(DefaultSensitiveHeaders()...)(c)

	for _, opt := range opts {
		opt(c)
	}

	if c.maxBodyBytes < 0 {
		return nil, fmt.Errorf("capture: max body bytes must be >= 0, got %d", c.maxBodyBytes)
	}
	if !c.responseLimitSet {
		c.maxResponseBodyBytes = c.maxBodyBytes
	}
	if c.maxResponseBodyBytes < 0 {
		return nil, fmt.Errorf("capture: max response body bytes must be >= 0, got %d", c.maxResponseBodyBytes)
	}
	if c.requestTransformer == nil {
		c.requestTransformer = DefaultTransformer
	}
	if c.responseTransformer == nil {
		c.responseTransformer = DefaultTransformer
	}

	return c, nil
}

// MustConfig is like NewConfig but panics on error.
func MustConfig(opts ...Option) *Config {
	c, err := NewConfig(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Enabled reports whether sessions should be opened for this Config.
func (c *Config) Enabled() bool { return !c.disabled }

// HiddenKeys returns the lower-cased hidden keys in sorted order.
func (c *Config) HiddenKeys() []string { return c.masker.Keys() }

// Masker returns the key masker built from the hidden keys.
func (c *Config) Masker() *KeyMasker { return c.masker }

// MaskAuthHeader reports whether the Authorization header is masked.
func (c *Config) MaskAuthHeader() bool { return c.maskAuthHeader }

// MaxBodyBytes returns the request body limit.
func (c *Config) MaxBodyBytes() int64 { return c.maxBodyBytes }

// MaxResponseBodyBytes returns the response body limit.
func (c *Config) MaxResponseBodyBytes() int64 { return c.maxResponseBodyBytes }

// SensitiveHeaders returns the lower-cased fully redacted header names.
func (c *Config) SensitiveHeaders() []string {
	names := make([]string, 0, len(c.sensitiveHeaders))
	for name := range c.sensitiveHeaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) isSensitiveHeader(lower string) bool {
	_, ok := c.sensitiveHeaders[lower]
	return ok
}

// Current returns c, so a *Config can be used directly as a ConfigSource.
func (c *Config) Current() *Config { return c }

// ConfigSource provides the Config a new session should use.
type ConfigSource interface {
	Current() *Config
}

// StaticSource always returns the same Config.
type StaticSource struct {
	cfg *Config
}

// NewStaticSource returns a source serving cfg.
func NewStaticSource(cfg *Config) *StaticSource {
	return &StaticSource{cfg: cfg}
}

// Current returns the configured Config.
func (s *StaticSource) Current() *Config { return s.cfg }

// AtomicSource serves a Config that can be replaced at runtime. Sessions
// already in flight keep the Config they started with.
type AtomicSource struct {
	cfg atomic.Pointer[Config]
}

// NewAtomicSource returns a source initially serving cfg.
func NewAtomicSource(cfg *Config) *AtomicSource {
	s := &AtomicSource{}
	s.cfg.Store(cfg)
	return s
}

// Current returns the active Config.
func (s *AtomicSource) Current() *Config { return s.cfg.Load() }

// Store replaces the active Config.
func (s *AtomicSource) Store(cfg *Config) { s.cfg.Store(cfg) }
