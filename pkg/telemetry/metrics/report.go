package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReportMetrics tracks record persistence.
type ReportMetrics struct {
	reports    *prometheus.CounterVec
	duration   prometheus.Histogram
	queueDepth prometheus.Gauge
}

// NewReportMetrics creates and registers report metrics.
func NewReportMetrics(cfg *Config, registry *prometheus.Registry) *ReportMetrics {
	rm := &ReportMetrics{
		reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reports_total",
				Help:      "Capture records by persistence outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "report_duration_seconds",
				Help:      "Time spent writing a capture record to storage",
				Buckets:   prometheus.DefBuckets,
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "report_queue_depth",
				Help:      "Capture records waiting to be persisted",
			},
		),
	}

	registry.MustRegister(rm.reports, rm.duration, rm.queueDepth)
	return rm
}
