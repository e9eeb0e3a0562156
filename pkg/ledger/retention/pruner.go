package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"mercator-hq/callisto/pkg/ledger"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep pass reports.
	// 0 keeps reports forever.
	RetentionDays int

	// MaxPasses is the maximum number of pass reports to keep.
	// 0 means unlimited.
	MaxPasses int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 4 * * *",
	}
}

// Pruner enforces retention on pass reports.
type Pruner struct {
	store     ledger.PassStore
	config    *Config
	clock     clockwork.Clock
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner. A nil clock uses the real
// clock.
func NewPruner(store ledger.PassStore, config *Config, clock clockwork.Clock) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	pruner := &Pruner{
		store:  store,
		config: config,
		clock:  clock,
		logger: slog.Default().With("component", "ledger.retention"),
	}
	pruner.scheduler = NewScheduler(pruner)

	return pruner
}

// Prune deletes pass reports older than the retention period, then the
// oldest reports beyond MaxPasses. It returns the number of passes deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		cutoff := p.clock.Now().AddDate(0, 0, -p.config.RetentionDays)
		deleted, err := p.store.DeletePassesBefore(ctx, cutoff)
		if err != nil {
			return total, ledger.NewRetentionError(p.config.RetentionDays, fmt.Errorf("prune by age failed: %w", err))
		}
		total += deleted
		p.logger.Debug("pruned passes by age",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}

	if p.config.MaxPasses > 0 {
		count, err := p.store.CountPasses(ctx)
		if err != nil {
			return total, fmt.Errorf("failed to count passes: %w", err)
		}
		if count > int64(p.config.MaxPasses) {
			deleted, err := p.store.DeleteOldestPasses(ctx, p.config.MaxPasses)
			if err != nil {
				return total, fmt.Errorf("prune by count failed: %w", err)
			}
			total += deleted
			p.logger.Debug("pruned passes by count",
				"deleted_count", deleted,
				"max_passes", p.config.MaxPasses,
			)
		}
	}

	if total > 0 {
		p.logger.Info("ledger pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_passes", p.config.MaxPasses,
		)
	}

	return total, nil
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
