package persist

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"focusguard-backend/config"
	"focusguard-backend/internal/metrics"
)

// Purger deletes events created before a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically deletes events older than the retention period.
type Janitor struct {
	purger    Purger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewJanitor creates a janitor from the retention config. A zero Days disables it.
func NewJanitor(p Purger, cfg config.RetentionConfig, logger zerolog.Logger) *Janitor {
	return &Janitor{
		purger:    p,
		retention: time.Duration(cfg.Days) * 24 * time.Hour,
		interval:  cfg.Interval,
		now:       time.Now,
		logger:    logger.With().Str("component", "retention").Logger(),
	}
}

// Run purges once immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j.retention <= 0 || j.interval <= 0 {
		j.logger.Info().Msg("retention cleanup disabled")
		return
	}
	j.logger.Info().Dur("retention", j.retention).Dur("interval", j.interval).Msg("starting retention cleanup")

	j.RunOnce(ctx)

	timer := time.NewTimer(j.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			j.RunOnce(ctx)
			timer.Reset(j.interval)
		}
	}
}

// RunOnce deletes everything older than the retention period and returns the number of rows removed.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.retention)
	n, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to purge events")
		return 0
	}
	if n > 0 {
		metrics.EventsPurged.Add(float64(n))
		j.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("purged old events")
	}
	return n
}
