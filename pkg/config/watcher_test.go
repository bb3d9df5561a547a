package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/tap/pkg/capture"
)

func TestFileWatcher_DetectsWrite(t *testing.T) {
	path := writeConfig(t, "environment: production\n")

	watcher, err := NewFileWatcher(path, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = watcher.Stop() }()

	reloaded := make(chan struct{}, 10)
	onChange := func() error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Watch(ctx, onChange) }()

	// Wait for the watcher to start
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("environment: staging\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Error("onChange not called after file modification")
	}
}

func TestFileWatcher_DetectsRenameReplace(t *testing.T) {
	path := writeConfig(t, "environment: production\n")

	watcher, err := NewFileWatcher(path, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = watcher.Stop() }()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = watcher.Watch(ctx, func() error {
			calls.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	// Editors commonly write a temp file and rename it over the original.
	tmp := filepath.Join(filepath.Dir(path), "tap.yaml.tmp")
	if err := os.WriteFile(tmp, []byte("environment: staging\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Error("onChange not called after rename over the file")
	}
}

func TestFileWatcher_IgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, "environment: production\n")

	watcher, err := NewFileWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = watcher.Stop() }()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = watcher.Watch(ctx, func() error {
			calls.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(other, []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("onChange called %d times for a sibling file, want 0", n)
	}
}

func TestFileWatcher_ShouldProcessEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tap.yaml")
	watcher, err := NewFileWatcher(path, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = watcher.Stop() }()

	dir := filepath.Dir(watcher.path)
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: watcher.path, Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: watcher.path, Op: fsnotify.Create}, true},
		{"chmod", fsnotify.Event{Name: watcher.path, Op: fsnotify.Chmod}, false},
		{"sibling", fsnotify.Event{Name: filepath.Join(dir, "other.yaml"), Op: fsnotify.Write}, false},
		{"configmap swap", fsnotify.Event{Name: filepath.Join(dir, "..data"), Op: fsnotify.Create}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := watcher.shouldProcessEvent(tt.event); got != tt.want {
				t.Errorf("shouldProcessEvent(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestFileWatcher_DoubleStart(t *testing.T) {
	path := writeConfig(t, "")

	watcher, err := NewFileWatcher(path, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = watcher.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Watch(ctx, func() error { return nil }) }()

	time.Sleep(50 * time.Millisecond)

	if err := watcher.Watch(ctx, func() error { return nil }); err == nil {
		t.Error("second Watch() should fail while running")
	}
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	path := writeConfig(t, "")

	watcher, err := NewFileWatcher(path, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- watcher.Watch(context.Background(), func() error { return nil }) }()
	time.Sleep(50 * time.Millisecond)

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() returned %v after Stop", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch() did not return after Stop")
	}
}

func TestDebouncer_Trigger(t *testing.T) {
	debouncer := NewDebouncer(100 * time.Millisecond)
	defer debouncer.Stop()

	var callCount atomic.Int32
	for i := 0; i < 5; i++ {
		debouncer.Trigger(func() { callCount.Add(1) })
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	if count := callCount.Load(); count != 1 {
		t.Errorf("callback called %d times, want 1", count)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	debouncer := NewDebouncer(100 * time.Millisecond)

	var callCount atomic.Int32
	debouncer.Trigger(func() { callCount.Add(1) })
	debouncer.Stop()
	debouncer.Trigger(func() { callCount.Add(1) })

	time.Sleep(150 * time.Millisecond)

	if count := callCount.Load(); count != 0 {
		t.Errorf("callback called %d times after Stop(), want 0", count)
	}
}

func TestReloader_Reload(t *testing.T) {
	t.Cleanup(resetGlobal)

	path := writeConfig(t, `
capture:
  hidden_keys: ["password"]
  limit_request_body_size: 100
storage:
  backend: memory
`)

	initial := capture.MustConfig()
	source := capture.NewAtomicSource(initial)

	var seen *Config
	reloader := NewReloader(path, source, WithOnReload(func(cfg *Config) { seen = cfg }))

	if err := reloader.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	current := source.Current()
	if current == initial {
		t.Fatal("expected the capture config to be replaced")
	}
	if current.MaxBodyBytes() != 100 {
		t.Errorf("expected limit 100, got %d", current.MaxBodyBytes())
	}
	if keys := current.HiddenKeys(); len(keys) != 1 || keys[0] != "password" {
		t.Errorf("unexpected hidden keys %v", keys)
	}
	if seen == nil || GetConfig() != seen {
		t.Error("expected the reloaded config to be published")
	}
}

func TestReloader_ReloadKeepsConfigOnError(t *testing.T) {
	t.Cleanup(resetGlobal)

	path := writeConfig(t, "capture:\n  limit_request_body_size: -1\n")

	initial := capture.MustConfig()
	source := capture.NewAtomicSource(initial)
	reloader := NewReloader(path, source)

	if err := reloader.Reload(); err == nil {
		t.Fatal("expected Reload() to fail for an invalid file")
	}
	if source.Current() != initial {
		t.Error("capture config must not change when reload fails")
	}
}

func TestReloader_WithCaptureOptions(t *testing.T) {
	t.Cleanup(resetGlobal)

	path := writeConfig(t, "storage:\n  backend: memory\n")
	source := capture.NewAtomicSource(capture.MustConfig())

	called := false
	transformer := func(raw []byte) (any, error) {
		called = true
		return nil, nil
	}
	reloader := NewReloader(path, source, WithCaptureOptions(capture.WithResponseTransformer(transformer)))
	if err := reloader.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	session := capture.NewSession(source.Current())
	if _, err := session.CaptureRequest(capture.RequestMeta{Method: "GET"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := session.BeginHandler(); err != nil {
		t.Fatal(err)
	}
	if err := session.CaptureResponse(capture.ResponseMeta{Status: 200, Size: 2}, []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("expected the reloaded config to keep the response transformer")
	}
}

func TestReloader_RunPicksUpChanges(t *testing.T) {
	t.Cleanup(resetGlobal)

	path := writeConfig(t, "storage:\n  backend: memory\n")
	source := capture.NewAtomicSource(capture.MustConfig())
	reloader := NewReloader(path, source, WithDebounceInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reloader.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("storage:\n  backend: memory\ncapture:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for source.Current().Enabled() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if source.Current().Enabled() {
		t.Error("expected capture to be disabled after the file changed")
	}

	if err := reloader.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Run() did not return after Stop")
	}
}
