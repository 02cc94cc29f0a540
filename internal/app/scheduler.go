package app

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/cache"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/portfolio"
)

// runSweeper purges expired cache entries and idle sessions on a fixed interval.
func runSweeper(ctx context.Context, c *cache.Cache, sessions *portfolio.SessionStore, logger *common.Logger, interval, sessionIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Sweeper: stopped")
			return
		case <-ticker.C:
			sweep(ctx, c, sessions, logger, time.Now().Add(-sessionIdle))
		}
	}
}

func sweep(ctx context.Context, c *cache.Cache, sessions *portfolio.SessionStore, logger *common.Logger, sessionCutoff time.Time) {
	start := time.Now()

	purged, err := c.Prune(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Sweeper: cache prune failed")
	}
	expired := sessions.Expire(sessionCutoff)

	if purged > 0 || len(expired) > 0 {
		logger.Info().
			Int("cache_entries", purged).
			Int("sessions", len(expired)).
			Dur("elapsed", time.Since(start)).
			Msg("Sweeper: complete")
	}
}
