package reporter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report"
)

// Outcomes passed to Observer.ObserveReport.
const (
	OutcomeStored      = "stored"
	OutcomeFailed      = "failed"
	OutcomeDropped     = "dropped"
	OutcomeBreakerOpen = "breaker_open"
)

// Config contains configuration for the reporter.
type Config struct {
	// AsyncBuffer is the size of the record channel.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// Breaker configures the circuit breaker around storage writes.
	Breaker BreakerConfig
}

// BreakerConfig configures the storage circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32        // Requests allowed while half-open
	Interval         time.Duration // Closed-state window after which counts reset
	Timeout          time.Duration // Open-state duration before trying half-open
	FailureThreshold float64       // Failure ratio that trips the breaker
	MinRequests      uint32        // Requests needed before the ratio is evaluated
}

// DefaultConfig returns the default reporter configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// Observer receives reporter outcomes, typically for metrics.
type Observer interface {
	ObserveReport(outcome string, duration time.Duration)
	ObserveQueueDepth(depth int)
}

type nopObserver struct{}

func (nopObserver) ObserveReport(string, time.Duration) {}
func (nopObserver) ObserveQueueDepth(int) {}

// Stats is a snapshot of reporter counters.
type Stats struct {
	Stored  uint64
	Failed  uint64
	Dropped uint64
}

// Reporter persists capture records asynchronously.
type Reporter struct {
	storage    report.Storage
	config     *Config
	recordChan chan *capture.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once

	// mu orders enqueues against Close: a record either reaches the channel
	// before the worker starts draining or is counted as dropped.
	mu     sync.RWMutex
	closed bool

	breaker    *gobreaker.CircuitBreaker
	observer   Observer
	logger     *slog.Logger

	stored  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithObserver sets the observer notified of every outcome.
func WithObserver(o Observer) Option {
	return func(r *Reporter) {
		if o != nil {
			r.observer = o
		}
	}
}

// New starts a reporter writing to storage.
func New(storage report.Storage, config *Config, opts ...Option) *Reporter {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = defaults.AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Breaker == (BreakerConfig{}) {
		config.Breaker = defaults.Breaker
	}

	r := &Reporter{
		storage:    storage,
		config:     config,
		recordChan: make(chan *capture.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		observer:   nopObserver{},
		logger:     slog.Default().With("component", "report.reporter"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.breaker = r.newBreaker()

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("reporter started",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

func (r *Reporter) newBreaker() *gobreaker.CircuitBreaker {
	bc := r.config.Breaker
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "report-storage",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("storage circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// Report enqueues record without blocking. The record is dropped when the
// queue is full or the reporter is closed.
func (r *Reporter) Report(ctx context.Context, record *capture.Record) {
	if record == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(record, "reporter closed")
		return
	}

	select {
	case r.recordChan <- record:
		r.observer.ObserveQueueDepth(len(r.recordChan))
	default:
		r.drop(record, "queue full")
	}
}

func (r *Reporter) drop(record *capture.Record, reason string) {
	r.dropped.Add(1)
	r.observer.ObserveReport(OutcomeDropped, 0)
	r.logger.Warn("capture record dropped",
		"record_id", record.ID,
		"reason", reason,
	)
}

// Close stops the reporter and waits until queued records are written.
func (r *Reporter) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down reporter")
		r.mu.Lock()
		r.closed = true
		close(r.done)
		r.mu.Unlock()
		r.wg.Wait()
		r.logger.Info("reporter shut down complete",
			"stored", r.stored.Load(),
			"failed", r.failed.Load(),
			"dropped", r.dropped.Load(),
		)
	})
	return nil
}

// Stats returns the current counters.
func (r *Reporter) Stats() Stats {
	return Stats{
		Stored:  r.stored.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
	}
}

// BreakerState returns the storage circuit breaker state.
func (r *Reporter) BreakerState() gobreaker.State {
	return r.breaker.State()
}

func (r *Reporter) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			r.logger.Info("draining record channel before shutdown",
				"pending_count", len(r.recordChan),
			)
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					r.logger.Info("record channel drained")
					return
				}
			}
		}
	}
}

func (r *Reporter) writeRecord(record *capture.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.storage.Store(ctx, record)
	})
	duration := time.Since(start)
	r.observer.ObserveQueueDepth(len(r.recordChan))

	if err != nil {
		r.failed.Add(1)
		outcome := OutcomeFailed
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = OutcomeBreakerOpen
		}
		r.observer.ObserveReport(outcome, duration)
		r.logger.Error("failed to store capture record",
			"error", report.NewReporterError(record.ID, err),
			"request_id", record.RequestID,
			"outcome", outcome,
		)
		return
	}

	r.stored.Add(1)
	r.observer.ObserveReport(OutcomeStored, duration)
	r.logger.Debug("capture record stored",
		"record_id", record.ID,
		"request_id", record.RequestID,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow capture record write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
