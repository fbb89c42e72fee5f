package core

// janitor.go provides background cleanup of result artifacts.
//
// Artifacts are kept only long enough to be attached to the outgoing email and
// inspected by an operator. The janitor runs once on start, then every
// interval, removing artifacts older than the retention period. A failed sweep
// is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/topsis/internal/metrics"
)

// Sweeper removes artifacts older than a cutoff and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// JanitorConfig holds configuration for the artifact janitor.
type JanitorConfig struct {
	Retention time.Duration // Age after which artifacts are removed
	Interval  time.Duration // How often to sweep
}

// Janitor periodically sweeps expired artifacts.
type Janitor struct {
	sweeper Sweeper
	cfg     JanitorConfig
	metrics *metrics.Metrics
}

// NewJanitor creates a janitor over the given sweeper. A non-positive interval
// defaults to ten minutes. m may be nil.
func NewJanitor(sweeper Sweeper, cfg JanitorConfig, m *metrics.Metrics) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Janitor{sweeper: sweeper, cfg: cfg, metrics: m}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	slog.Info("artifact janitor started",
		"retention", j.cfg.Retention,
		"interval", j.cfg.Interval,
	)

	j.RunOnce(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("artifact janitor stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of artifacts removed.
func (j *Janitor) RunOnce(ctx context.Context) int {
	start := time.Now()
	removed, err := j.sweeper.Sweep(ctx, j.cfg.Retention)
	j.metrics.ArtifactsSwept(removed)
	if err != nil {
		slog.Error("artifact sweep failed", "error", err, "removed", removed)
		return removed
	}
	if removed > 0 {
		slog.Info("expired artifacts removed",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return removed
}
