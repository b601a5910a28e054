// Package janitor enforces the on-disk byte quota for recordings by
// evicting the oldest eligible completed recordings once usage crosses
// a threshold (spec component C11).
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/faceguard/internal/eventbus"
	"github.com/your-org/faceguard/internal/observability"
	"github.com/your-org/faceguard/internal/store"
)

// DefaultInterval is how often the janitor scans storage usage.
const DefaultInterval = 60 * time.Second

const (
	warnThreshold   = 0.90
	evictThreshold  = 0.95
	sweepBatchLimit = 50
)

// Publisher is the subset of the event bus the janitor depends on.
type Publisher interface {
	Publish(evt eventbus.DomainEvent)
}

// SettingsSource reads the live recording configuration.
type SettingsSource interface {
	Get(ctx context.Context) (*store.Settings, error)
}

// ObjectDeleter removes a recording's backing file from object storage.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// CleanupResult reports the outcome of one sweep, adopted from the
// Spatial-NVR RetentionStats shape.
type CleanupResult struct {
	UsageBytes    int64
	QuotaBytes    int64
	UsagePercent  float64
	Deleted       int
	FreedBytes    int64
	SkippedByAge  int
	SweepDuration time.Duration
}

// Janitor periodically measures storage usage against the configured
// quota and evicts the oldest completed recordings to bring usage back
// under the target headroom.
type Janitor struct {
	recordings store.RecordingRepo
	objects    ObjectDeleter
	settings   SettingsSource
	bus        Publisher
	interval   time.Duration

	stop chan struct{}
}

// New builds a Janitor. interval <= 0 uses DefaultInterval.
func New(recordings store.RecordingRepo, objects ObjectDeleter, settings SettingsSource, bus Publisher, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Janitor{
		recordings: recordings,
		objects:    objects,
		settings:   settings,
		bus:        bus,
		interval:   interval,
		stop:       make(chan struct{}),
	}
}

// Run drives the periodic sweep until ctx is done or Stop is called.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				slog.Error("janitor: sweep", "error", err)
			}
		}
	}
}

// Stop ends the background loop. Safe to call more than once.
func (j *Janitor) Stop() {
	select {
	case <-j.stop:
	default:
		close(j.stop)
	}
}

// Sweep runs one usage scan and, if warranted, one eviction pass. It is
// exported so the Recording Controller can trigger an out-of-band sweep
// immediately on a disk-full failure (see recording.Controller.kickSweep),
// rather than waiting for the next tick of Run's periodic timer.
func (j *Janitor) Sweep(ctx context.Context) (CleanupResult, error) {
	start := time.Now()

	settings, err := j.settings.Get(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("janitor: load settings: %w", err)
	}
	cfg := settings.Recording

	used, err := j.recordings.TotalSizeBytes(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("janitor: total size: %w", err)
	}
	defer func() { observability.StorageUsageBytes.Set(float64(used)) }()

	result := CleanupResult{UsageBytes: used, QuotaBytes: cfg.MaxStorageBytes}
	if cfg.MaxStorageBytes <= 0 {
		result.SweepDuration = time.Since(start)
		return result, nil
	}
	result.UsagePercent = float64(used) / float64(cfg.MaxStorageBytes)

	if result.UsagePercent >= warnThreshold {
		j.bus.Publish(eventbus.StorageWarning(result.UsagePercent * 100))
	}

	if !cfg.AutoCleanup || result.UsagePercent < evictThreshold {
		result.SweepDuration = time.Since(start)
		return result, nil
	}

	targetBytes := int64(cfg.CleanupTargetPercent / 100 * float64(cfg.MaxStorageBytes))
	if targetBytes <= 0 {
		targetBytes = int64(0.80 * float64(cfg.MaxStorageBytes))
	}
	minAge := time.Duration(cfg.MinRetentionDays) * 24 * time.Hour
	now := time.Now()

	for used > targetBytes {
		candidates, err := j.recordings.ListCompletedOldestFirst(ctx, sweepBatchLimit)
		if err != nil {
			return result, fmt.Errorf("janitor: list completed: %w", err)
		}
		if len(candidates) == 0 {
			break
		}

		progressed := false
		for _, rec := range candidates {
			if used <= targetBytes {
				break
			}
			if now.Sub(rec.StartedAt) < minAge {
				result.SkippedByAge++
				continue
			}

			// Row deleted before file: an orphaned file after a crash is
			// tolerated and swept on a later cycle by virtue of no row
			// referencing it.
			if err := j.recordings.Delete(ctx, rec.ID); err != nil {
				slog.Warn("janitor: delete recording row", "recording_id", rec.ID, "error", err)
				continue
			}
			if err := j.objects.Delete(ctx, rec.FileRef); err != nil {
				slog.Warn("janitor: delete recording file", "recording_id", rec.ID, "file_ref", rec.FileRef, "error", err)
			}

			used -= rec.SizeBytes
			result.Deleted++
			result.FreedBytes += rec.SizeBytes
			progressed = true
		}

		if !progressed {
			break
		}
	}

	result.UsageBytes = used
	result.UsagePercent = float64(used) / float64(cfg.MaxStorageBytes)
	result.SweepDuration = time.Since(start)
	slog.Info("janitor: sweep complete", "deleted", result.Deleted, "freed_bytes", result.FreedBytes,
		"usage_percent", result.UsagePercent*100, "skipped_by_age", result.SkippedByAge)
	return result, nil
}
