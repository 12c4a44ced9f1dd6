// Package monitor samples catalog storage usage in the background.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/store"
)

// KeepSamples is how many usage samples are retained.
const KeepSamples = 30

// Observer receives every recorded sample.
type Observer interface {
	ObserveUsage(sample *domain.UsageSample)
}

// SampleOnce measures the catalog, stores a sample and trims old ones.
func SampleOnce(ctx context.Context, repo store.Repository, obs Observer) (*domain.UsageSample, error) {
	stats, err := repo.ProjectStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read project stats: %w", err)
	}

	sample := &domain.UsageSample{
		RecordCount:  stats.RecordCount,
		ApproxSizeKB: (stats.EmbeddingBytes + 512) / 1024,
		SampledAt:    time.Now().UTC(),
	}
	if err := repo.InsertUsageSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("store usage sample: %w", err)
	}
	if deleted, err := repo.TrimUsageSamples(ctx, KeepSamples); err != nil {
		slog.Warn("Usage monitor failed to trim old samples", "error", err)
	} else if deleted > 0 {
		slog.Debug("Usage monitor trimmed old samples", "count", deleted)
	}

	if obs != nil {
		obs.ObserveUsage(sample)
	}
	return sample, nil
}

// StartUsageWorker samples usage immediately and then every interval until
// ctx is canceled.
func StartUsageWorker(ctx context.Context, repo store.Repository, interval time.Duration, obs Observer) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Usage monitor started", "interval", interval)

		sample(ctx, repo, obs)
		for {
			select {
			case <-ticker.C:
				sample(ctx, repo, obs)
			case <-ctx.Done():
				slog.Info("Usage monitor shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sample(ctx context.Context, repo store.Repository, obs Observer) {
	s, err := SampleOnce(ctx, repo, obs)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Usage monitor failed to sample", "error", err)
		}
		return
	}
	slog.Info("Usage sample recorded", "record_count", s.RecordCount, "approx_size_kb", s.ApproxSizeKB)
}
