package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report"
	"mercator-hq/tap/pkg/report/storage"
)

// failingStorage fails every Store call and counts attempts.
type failingStorage struct {
	*storage.MemoryStorage
	mu    sync.Mutex
	calls int
}

func (s *failingStorage) Store(ctx context.Context, record *capture.Record) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return errors.New("disk full")
}

func (s *failingStorage) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingStorage holds every Store call until release is closed.
type blockingStorage struct {
	*storage.MemoryStorage
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (s *blockingStorage) Store(ctx context.Context, record *capture.Record) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.MemoryStorage.Store(ctx, record)
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *outcomeRecorder) ObserveReport(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func (o *outcomeRecorder) ObserveQueueDepth(int) {}

func (o *outcomeRecorder) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[outcome]
}

func newRecord(id string) *capture.Record {
	return &capture.Record{
		ID:        id,
		RequestID: "req-" + id,
		Timestamp: time.Now(),
		Request: capture.RequestRecord{
			Method: "GET",
			URL:    "http://example.com/" + id,
			Body:   capture.Body{Status: capture.BodySkipped},
		},
		Response: capture.ResponseRecord{
			Status: 200,
			Body:   capture.Body{Status: capture.BodySkipped},
		},
	}
}

func TestReporter_StoresRecords(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.AsyncBuffer = 10

	r := New(store, config)
	for _, id := range []string{"a", "b", "c"} {
		r.Report(context.Background(), newRecord(id))
	}
	require.NoError(t, r.Close())

	assert.Equal(t, 3, store.Size())
	assert.Equal(t, Stats{Stored: 3}, r.Stats())

	got := store.GetByID("b")
	require.NotNil(t, got)
	assert.Equal(t, "req-b", got.RequestID)
}

func TestReporter_DropsWhenQueueFull(t *testing.T) {
	store := &blockingStorage{
		MemoryStorage: storage.NewMemoryStorage(),
		release:       make(chan struct{}),
		started:       make(chan struct{}),
	}
	obs := &outcomeRecorder{}
	config := DefaultConfig()
	config.AsyncBuffer = 1

	r := New(store, config, WithObserver(obs))

	// The worker takes the first record and blocks in Store.
	r.Report(context.Background(), newRecord("first"))
	<-store.started

	start := time.Now()
	r.Report(context.Background(), newRecord("queued"))
	r.Report(context.Background(), newRecord("dropped-1"))
	r.Report(context.Background(), newRecord("dropped-2"))
	assert.Less(t, time.Since(start), time.Second, "Report must not block")

	close(store.release)
	require.NoError(t, r.Close())

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Stored)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, 2, obs.count(OutcomeDropped))
	assert.Equal(t, 2, store.Size())
}

func TestReporter_DropsAfterClose(t *testing.T) {
	store := storage.NewMemoryStorage()
	r := New(store, nil)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "Close is idempotent")

	r.Report(context.Background(), newRecord("late"))
	r.Report(context.Background(), nil)

	assert.Equal(t, 0, store.Size())
	assert.Equal(t, uint64(1), r.Stats().Dropped)
}

func TestReporter_CloseDuringReportAccountsForEveryRecord(t *testing.T) {
	const writers, perWriter = 8, 50

	for round := 0; round < 20; round++ {
		store := storage.NewMemoryStorage()
		config := DefaultConfig()
		config.AsyncBuffer = writers * perWriter
		r := New(store, config)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				for i := 0; i < perWriter; i++ {
					r.Report(context.Background(), newRecord(fmt.Sprintf("r%d-w%d-%d", round, w, i)))
				}
			}(w)
		}

		close(start)
		require.NoError(t, r.Close())
		wg.Wait()

		stats := r.Stats()
		assert.Equal(t, uint64(writers*perWriter), stats.Stored+stats.Dropped)
		assert.Equal(t, int(stats.Stored), store.Size())
	}
}

func TestReporter_BreakerOpensOnFailures(t *testing.T) {
	store := &failingStorage{MemoryStorage: storage.NewMemoryStorage()}
	obs := &outcomeRecorder{}
	config := DefaultConfig()
	config.AsyncBuffer = 20
	config.Breaker = BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      3,
	}

	r := New(store, config, WithObserver(obs))
	for i := 0; i < 10; i++ {
		r.Report(context.Background(), newRecord(string(rune('a'+i))))
	}
	require.NoError(t, r.Close())

	assert.Equal(t, 3, store.attempts(), "breaker should stop calling storage once open")
	assert.Equal(t, 3, obs.count(OutcomeFailed))
	assert.Equal(t, 7, obs.count(OutcomeBreakerOpen))
	assert.Equal(t, uint64(10), r.Stats().Failed)
	assert.Equal(t, gobreaker.StateOpen, r.BreakerState())
}

func TestReporter_ImplementsCaptureReporter(t *testing.T) {
	var _ capture.Reporter = (*Reporter)(nil)
	var _ report.Storage = (*failingStorage)(nil)
}
