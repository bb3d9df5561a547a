package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers Pruner.Prune on the pruner's PruneSchedule. A prune that
// is still running when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	pruner *Pruner
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	stopped chan struct{}
}

// NewScheduler returns an idle scheduler for pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		logger: slog.Default().With("component", "report.scheduler"),
	}
}

// Start begins scheduled pruning until ctx is done or Stop is called. An
// empty schedule disables pruning and is not an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := s.pruner.config.PruneSchedule
	if spec == "" {
		s.logger.Info("no prune schedule, captures are kept until pruned manually")
		return nil
	}
	if s.cron != nil {
		return errors.New("retention scheduler already running")
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("prune schedule %q: %w", spec, err)
	}

	// cron reports skipped ticks through a printf logger; route it into slog.
	cronLog := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	c := cron.New(cron.WithLogger(cronLog))
	job := cron.NewChain(cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(func() { s.prune(ctx) }))

	s.cron = c
	s.entry = c.Schedule(sched, job)
	s.stopped = make(chan struct{})
	c.Start()

	s.logger.Info("retention scheduler started",
		"schedule", spec,
		"retention_days", s.pruner.config.RetentionDays,
		"max_records", s.pruner.config.MaxRecords,
	)

	go func(stopped <-chan struct{}) {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}(s.stopped)

	return nil
}

func (s *Scheduler) prune(ctx context.Context) {
	started := time.Now()
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled prune failed", "deleted", deleted, "error", err)
		return
	}
	s.logger.Info("scheduled prune finished", "deleted", deleted, "duration", time.Since(started))
}

// Stop halts the schedule and waits for an in-flight prune.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, stopped := s.cron, s.stopped
	s.cron, s.stopped = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	close(stopped)
	<-c.Stop().Done()
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether a schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// NextRun returns when the next prune fires, or nil when no schedule is
// active.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}
