package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/tap/pkg/capture"
	"mercator-hq/tap/pkg/report"
	"mercator-hq/tap/pkg/report/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep records.
	// 0 keeps records forever.
	RetentionDays int

	// PruneSchedule is a standard cron expression, e.g. "0 3 * * *".
	// Empty disables scheduled pruning.
	PruneSchedule string

	// ArchiveBeforeDelete writes records to ArchivePath before deleting them.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory for archive files.
	ArchivePath string

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	MaxRecords int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays:       30,
		PruneSchedule:       "0 3 * * *",
		ArchiveBeforeDelete: false,
		ArchivePath:         "data/archives/",
		MaxRecords:          0,
	}
}

// Pruner enforces retention policies on capture records.
type Pruner struct {
	storage   report.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(storage report.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	pruner := &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "report.retention"),
		now:     time.Now,
	}
	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// Prune deletes records older than the retention period and then the
// oldest records beyond MaxRecords. It returns the number deleted, including
// deletions made before a failing step.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if days := p.config.RetentionDays; days > 0 {
		cutoff := p.now().AddDate(0, 0, -days)
		n, err := p.deleteThrough(ctx, cutoff, nil)
		if err != nil {
			return total, fmt.Errorf("prune by age: %w", report.NewRetentionError(days, err))
		}
		total += n
		p.logger.Info("pruned expired captures", "deleted", n, "cutoff", cutoff)
	}

	if p.config.MaxRecords > 0 {
		n, err := p.pruneByCount(ctx)
		total += n
		if err != nil {
			return total, fmt.Errorf("prune by count: %w", err)
		}
		if n > 0 {
			p.logger.Info("pruned oldest captures", "deleted", n, "max_records", p.config.MaxRecords)
		}
	}

	if total == 0 {
		p.logger.Debug("nothing to prune")
	}
	return total, nil
}

// deleteThrough removes every record at or before cutoff, archiving them
// first when configured. archived, when non-nil, is the already loaded set
// to archive instead of querying again.
func (p *Pruner) deleteThrough(ctx context.Context, cutoff time.Time, archived []*capture.Record) (int64, error) {
	q := &report.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		if archived == nil {
			var err error
			if archived, err = p.storage.Query(ctx, q); err != nil {
				return 0, err
			}
		}
		if err := p.archive(ctx, archived); err != nil {
			return 0, err
		}
	}
	return p.storage.Delete(ctx, q)
}

// pruneByCount deletes the oldest records while the total exceeds
// MaxRecords. Records sharing the cutoff timestamp go together, so slightly
// more than the excess may be removed.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &report.Query{})
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	excess := count - p.config.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	var deleted int64
	for deleted < excess {
		batch := min(excess-deleted, int64(report.MaxLimit))
		oldest, err := p.storage.Query(ctx, &report.Query{
			Limit:     int(batch),
			SortBy:    "timestamp",
			SortOrder: "asc",
		})
		if err != nil {
			return deleted, fmt.Errorf("load oldest records: %w", err)
		}
		if len(oldest) == 0 {
			break
		}

		n, err := p.deleteThrough(ctx, oldest[len(oldest)-1].Timestamp, oldest)
		if err != nil {
			return deleted, err
		}
		if n == 0 {
			break
		}
		deleted += n
	}
	return deleted, nil
}

// archive writes records as a JSON array to a timestamped file under
// ArchivePath.
func (p *Pruner) archive(ctx context.Context, records []*capture.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	name := filepath.Join(p.config.ArchivePath,
		"captures-"+p.now().Format("2006-01-02-150405.000")+".json")
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, records, f); err != nil {
		return err
	}
	p.logger.Info("archived captures", "file", name, "count", len(records))
	return nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
