package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/tap/pkg/capture"
)

// DefaultDebounceInterval is how long the watcher waits for writes to settle.
const DefaultDebounceInterval = 100 * time.Millisecond

// FileWatcher watches a single configuration file and calls back after it
// changes. The parent directory is watched rather than the file itself so
// editors that replace the file by rename, and Kubernetes ConfigMap symlink
// swaps, are still seen.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	path     string
	debounce *Debouncer

	mu       sync.Mutex
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewFileWatcher creates a watcher for path. A zero interval uses
// DefaultDebounceInterval.
func NewFileWatcher(path string, interval time.Duration, logger *slog.Logger) (*FileWatcher, error) {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default().With("component", "config.watcher")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:  watcher,
		logger:   logger,
		path:     abs,
		debounce: NewDebouncer(interval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is cancelled or Stop is called, invoking onChange
// once per burst of changes to the file. Errors from onChange are logged and
// watching continues.
func (fw *FileWatcher) Watch(ctx context.Context, onChange func() error) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return errors.New("watcher already running")
	}
	fw.running = true
	fw.mu.Unlock()
	defer close(fw.doneCh)

	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	fw.logger.Info("config watcher started",
		"path", fw.path,
		"debounce_ms", fw.debounce.interval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			fw.logger.Info("config watcher stopped (context cancelled)")
			return nil

		case <-fw.stopCh:
			fw.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !fw.shouldProcessEvent(event) {
				continue
			}

			fw.logger.Debug("config file event", "path", event.Name, "op", event.Op.String())

			fw.debounce.Trigger(func() {
				fw.logger.Info("reloading configuration", "path", fw.path)
				if err := onChange(); err != nil {
					fw.logger.Error("configuration reload failed", "error", err)
				}
			})

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			fw.logger.Error("config watcher error", "error", err)
		}
	}
}

// Stop stops a running Watch, cancels any pending callback and releases the
// underlying watcher. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopCh)

		fw.mu.Lock()
		running := fw.running
		fw.mu.Unlock()
		if running {
			<-fw.doneCh
		}

		fw.debounce.Stop()
		if cerr := fw.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
	})
	return err
}

// shouldProcessEvent keeps events that can change the file contents.
func (fw *FileWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	name := filepath.Clean(event.Name)
	if name == fw.path {
		return true
	}
	// ConfigMap volumes publish updates by swapping the ..data symlink.
	return filepath.Base(name) == "..data"
}

// Debouncer collects rapid triggers and runs only the last callback once the
// interval has passed without a new trigger.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing and delaying any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}

// Reloader keeps a capture.AtomicSource in step with the configuration file.
// New requests pick up the reloaded capture Config; requests in flight keep
// the Config they started with.
type Reloader struct {
	path     string
	source   *capture.AtomicSource
	extra    []capture.Option
	interval time.Duration
	logger   *slog.Logger
	onReload func(*Config)

	mu      sync.Mutex
	watcher *FileWatcher
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithCaptureOptions appends options, such as transformers, to every capture
// Config the reloader builds.
func WithCaptureOptions(opts ...capture.Option) ReloaderOption {
	return func(r *Reloader) {
		r.extra = append(r.extra, opts...)
	}
}

// WithDebounceInterval sets the debounce interval.
func WithDebounceInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		r.interval = d
	}
}

// WithReloadLogger sets the reloader logger.
func WithReloadLogger(l *slog.Logger) ReloaderOption {
	return func(r *Reloader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnReload registers fn to run after each successful reload.
func WithOnReload(fn func(*Config)) ReloaderOption {
	return func(r *Reloader) {
		r.onReload = fn
	}
}

// NewReloader creates a reloader for the file at path that stores into
// source.
func NewReloader(path string, source *capture.AtomicSource, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		path:     path,
		source:   source,
		interval: DefaultDebounceInterval,
		logger:   slog.Default().With("component", "config.reloader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload loads the file and swaps in the new capture Config. On any error
// the active Config is left unchanged.
func (r *Reloader) Reload() error {
	cfg, err := ReloadConfig(r.path)
	if err != nil {
		return err
	}

	cc, err := cfg.CaptureOptions(r.extra...)
	if err != nil {
		return fmt.Errorf("failed to build capture config: %w", err)
	}
	r.source.Store(cc)

	r.logger.Info("capture configuration reloaded",
		"enabled", cc.Enabled(),
		"hidden_keys", len(cc.HiddenKeys()),
		"max_body_bytes", cc.MaxBodyBytes(),
		"max_response_body_bytes", cc.MaxResponseBodyBytes(),
	)

	if r.onReload != nil {
		r.onReload(cfg)
	}
	return nil
}

// Run watches the file until ctx is cancelled or Stop is called.
func (r *Reloader) Run(ctx context.Context) error {
	watcher, err := NewFileWatcher(r.path, r.interval, r.logger)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	return watcher.Watch(ctx, r.Reload)
}

// Stop stops a running reloader.
func (r *Reloader) Stop() error {
	r.mu.Lock()
	watcher := r.watcher
	r.mu.Unlock()

	if watcher == nil {
		return nil
	}
	return watcher.Stop()
}
