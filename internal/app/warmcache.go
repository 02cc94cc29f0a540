package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// warmCache pre-fetches the FX rate and quotes for the curated tickers so
// the first valuation is fast.
func warmCache(ctx context.Context, gw interfaces.MarketDataGateway, cfg common.AnalyticsConfig, logger *common.Logger) {
	if os.Getenv("FOLIO_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via FOLIO_WARM_CACHE=off")
		return
	}

	start := time.Now()
	logger.Info().Int("tickers", len(models.CommonTickers)).Msg("Warm cache: starting")

	if rate := gw.GetExchangeRate(ctx, cfg.FXPair); rate <= 0 {
		logger.Warn().Str("pair", cfg.FXPair).Msg("Warm cache: exchange rate unavailable")
	}

	priced := 0
	for _, t := range models.CommonTickers {
		if ctx.Err() != nil {
			logger.Info().Msg("Warm cache: cancelled")
			return
		}
		if q := gw.GetQuote(ctx, t.Ticker); q.Price > 0 {
			priced++
		}
	}

	logger.Info().
		Int("priced", priced).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
