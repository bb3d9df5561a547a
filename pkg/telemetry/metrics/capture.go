package metrics

import "github.com/prometheus/client_golang/prometheus"

// CaptureMetrics tracks capture outcomes.
type CaptureMetrics struct {
	bodies            *prometheus.CounterVec
	bodySize          *prometheus.HistogramVec
	transformFailures *prometheus.CounterVec
	sessions          *prometheus.CounterVec
}

// NewCaptureMetrics creates and registers capture metrics.
func NewCaptureMetrics(cfg *Config, registry *prometheus.Registry) *CaptureMetrics {
	cm := &CaptureMetrics{
		bodies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bodies_total",
				Help:      "Captured bodies by direction and outcome",
			},
			[]string{"direction", "status"},
		),
		bodySize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "body_size_bytes",
				Help:      "Size of bodies seen by the capture layer",
				Buckets:   cfg.BodySizeBuckets,
			},
			[]string{"direction"},
		),
		transformFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "transform_failures_total",
				Help:      "Body transformer failures and panics",
			},
			[]string{"direction"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "sessions_total",
				Help:      "Capture sessions by terminal state",
			},
			[]string{"state"},
		),
	}

	registry.MustRegister(cm.bodies, cm.bodySize, cm.transformFailures, cm.sessions)
	return cm
}

// ObserveBody records one body outcome. Negative sizes are unknown and only
// counted.
func (cm *CaptureMetrics) ObserveBody(direction, status string, size int64) {
	cm.bodies.WithLabelValues(direction, status).Inc()
	if size >= 0 {
		cm.bodySize.WithLabelValues(direction).Observe(float64(size))
	}
}
