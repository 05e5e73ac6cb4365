package usecase

import (
	"context"
	"log/slog"
	"time"

	"ContentCurator/internal/cache"
	"ContentCurator/internal/logging"
	"ContentCurator/internal/ports"
)

// CachePurger compacts the cache store.
type CachePurger interface {
	PurgeExpired(maxAge time.Duration) (cache.PurgeStats, error)
}

// Maintenance wires the scheduler driver with periodic cache compaction.
type Maintenance struct {
	driver ports.Scheduler
	purger CachePurger
	maxAge time.Duration
	logger *slog.Logger
	done   func(cache.PurgeStats, error)
}

// NewMaintenance returns a helper that purges entries older than maxAge on
// every tick of driver.
func NewMaintenance(driver ports.Scheduler, purger CachePurger, maxAge time.Duration, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		driver: driver,
		purger: purger,
		maxAge: maxAge,
		logger: logging.OrNop(logger).With("component", "maintenance"),
	}
}

// OnPurge registers a callback invoked after every purge.
func (m *Maintenance) OnPurge(fn func(cache.PurgeStats, error)) {
	m.done = fn
}

// RunOnce performs a single purge.
func (m *Maintenance) RunOnce(trigger time.Time) (cache.PurgeStats, error) {
	stats, err := m.purger.PurgeExpired(m.maxAge)
	if err != nil {
		m.logger.Error("cache purge failed", "trigger", trigger, "error", err)
	} else {
		m.logger.Info("cache purged",
			"trigger", trigger,
			"urls_removed", stats.URLsRemoved,
			"content_removed", stats.ContentRemoved)
	}
	if m.done != nil {
		m.done(stats, err)
	}
	return stats, err
}

// Start registers the purge job with the scheduler.
func (m *Maintenance) Start(ctx context.Context) error {
	if m.driver == nil || m.purger == nil {
		return nil
	}

	job := func(trigger time.Time) {
		_, _ = m.RunOnce(trigger)
	}

	return m.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (m *Maintenance) Stop(ctx context.Context) error {
	if m.driver == nil {
		return nil
	}

	return m.driver.Stop(ctx)
}
