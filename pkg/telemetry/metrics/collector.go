package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/tap/pkg/capture"
)

// Config configures the metrics collector.
type Config struct {
	Enabled   bool
	Namespace string
	Subsystem string

	// RequestDurationBuckets are histogram buckets in seconds.
	RequestDurationBuckets []float64

	// BodySizeBuckets are histogram buckets in bytes.
	BodySizeBuckets []float64

	// MaxRouteCardinality bounds distinct route labels. Default: 1000
	MaxRouteCardinality int
}

// Collector owns the Prometheus registry and every metric subsystem.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	captureMetrics *CaptureMetrics
	reportMetrics  *ReportMetrics

	routeLimiter *CardinalityLimiter
}

// NewCollector creates a collector. A nil registry creates a fresh one.
func NewCollector(cfg *Config, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &Config{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "tap"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}
	if len(cfg.BodySizeBuckets) == 0 {
		cfg.BodySizeBuckets = prometheus.ExponentialBuckets(256, 4, 8) // 256B .. 4MiB
	}
	if cfg.MaxRouteCardinality <= 0 {
		cfg.MaxRouteCardinality = 1000
	}

	return &Collector{
		config:         cfg,
		registry:       registry,
		requestMetrics: NewRequestMetrics(cfg, registry),
		captureMetrics: NewCaptureMetrics(cfg, registry),
		reportMetrics:  NewReportMetrics(cfg, registry),
		routeLimiter:   NewCardinalityLimiter(cfg.MaxRouteCardinality),
	}
}

// RecordRequest records a completed HTTP request.
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	if !c.routeLimiter.Allow(route) {
		route = "other"
	}
	c.requestMetrics.Record(method, route, strconv.Itoa(status), duration)
}

// ObserveBody implements capture.Observer.
func (c *Collector) ObserveBody(direction capture.Direction, status capture.BodyStatus, size int64) {
	if !c.config.Enabled {
		return
	}
	c.captureMetrics.ObserveBody(string(direction), string(status), size)
}

// ObserveTransformFailure implements capture.Observer.
func (c *Collector) ObserveTransformFailure(direction capture.Direction) {
	if !c.config.Enabled {
		return
	}
	c.captureMetrics.transformFailures.WithLabelValues(string(direction)).Inc()
}

// ObserveSession implements capture.Observer.
func (c *Collector) ObserveSession(state capture.State) {
	if !c.config.Enabled {
		return
	}
	c.captureMetrics.sessions.WithLabelValues(state.String()).Inc()
}

// ObserveReport records the outcome of persisting one record.
func (c *Collector) ObserveReport(outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.reportMetrics.reports.WithLabelValues(outcome).Inc()
	if duration > 0 {
		c.reportMetrics.duration.Observe(duration.Seconds())
	}
}

// ObserveQueueDepth records the number of records waiting to be persisted.
func (c *Collector) ObserveQueueDepth(depth int) {
	if !c.config.Enabled {
		return
	}
	c.reportMetrics.queueDepth.Set(float64(depth))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already tracked or can still be added.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
