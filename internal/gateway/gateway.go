// Package gateway serves market data to the analytics engine through the
// cache. Upstream failures never reach the caller: they are logged and an
// empty or zero value is returned.
package gateway

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/cache"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// DefaultDividendYears is how far back dividend history is requested.
const DefaultDividendYears = 5

// Gateway implements interfaces.MarketDataGateway over a MarketDataSource.
type Gateway struct {
	source        interfaces.MarketDataSource
	cache         *cache.Cache
	logger        *common.Logger
	dividendYears int
	now           func() time.Time
}

var _ interfaces.MarketDataGateway = (*Gateway)(nil)

// Option configures a Gateway
type Option func(*Gateway)

// WithDividendYears sets the dividend history window in years
func WithDividendYears(years int) Option {
	return func(g *Gateway) {
		if years > 0 {
			g.dividendYears = years
		}
	}
}

// New creates a gateway
func New(source interfaces.MarketDataSource, c *cache.Cache, logger *common.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		source:        source,
		cache:         c,
		logger:        logger,
		dividendYears: DefaultDividendYears,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GetPriceHistory returns daily bars covering lookback, oldest first.
func (g *Gateway) GetPriceHistory(ctx context.Context, ticker string, lookback time.Duration) []models.PriceBar {
	ticker = normalize(ticker)
	if ticker == "" || lookback <= 0 {
		return nil
	}
	days := int(lookback / (24 * time.Hour))
	key := cache.Key(models.CacheKindPrices, ticker, strconv.Itoa(days)+"d")

	bars, err := cache.Fetch(ctx, g.cache, models.CacheKindPrices, key, func(ctx context.Context) ([]models.PriceBar, error) {
		to := g.now().UTC()
		return g.source.GetEOD(ctx, ticker, interfaces.WithDateRange(to.Add(-lookback), to))
	})
	if err != nil {
		g.logger.Warn().Str("ticker", ticker).Err(err).Msg("Price history unavailable")
		return nil
	}
	return bars
}

// GetQuote returns the latest quote, or a zero quote carrying only the ticker.
func (g *Gateway) GetQuote(ctx context.Context, ticker string) models.Quote {
	ticker = normalize(ticker)
	if ticker == "" {
		return models.Quote{}
	}
	key := cache.Key(models.CacheKindQuote, ticker)

	q, err := cache.Fetch(ctx, g.cache, models.CacheKindQuote, key, func(ctx context.Context) (models.Quote, error) {
		quote, err := g.source.GetQuote(ctx, ticker)
		if err != nil {
			return models.Quote{}, err
		}
		return *quote, nil
	})
	if err != nil {
		g.logger.Warn().Str("ticker", ticker).Err(err).Msg("Quote unavailable")
		return models.Quote{Ticker: ticker}
	}
	q.Ticker = ticker
	return q
}

// GetDividendHistory returns per-share dividends over the configured window.
func (g *Gateway) GetDividendHistory(ctx context.Context, ticker string) []models.DividendEvent {
	ticker = normalize(ticker)
	if ticker == "" {
		return nil
	}
	key := cache.Key(models.CacheKindDividend, ticker, strconv.Itoa(g.dividendYears)+"y")

	events, err := cache.Fetch(ctx, g.cache, models.CacheKindDividend, key, func(ctx context.Context) ([]models.DividendEvent, error) {
		return g.source.GetDividends(ctx, ticker, g.now().UTC().AddDate(-g.dividendYears, 0, 0))
	})
	if err != nil {
		g.logger.Warn().Str("ticker", ticker).Err(err).Msg("Dividend history unavailable")
		return nil
	}
	return events
}

// GetExchangeRate returns the rate for pair, or 0 when unknown.
func (g *Gateway) GetExchangeRate(ctx context.Context, pair string) float64 {
	pair = normalize(pair)
	if pair == "" {
		return 0
	}
	key := cache.Key(models.CacheKindFX, pair)

	rate, err := cache.Fetch(ctx, g.cache, models.CacheKindFX, key, func(ctx context.Context) (float64, error) {
		return g.source.GetExchangeRate(ctx, pair)
	})
	if err != nil {
		g.logger.Warn().Str("pair", pair).Err(err).Msg("Exchange rate unavailable")
		return 0
	}
	return rate
}

// GetNews returns up to limit headlines for ticker.
func (g *Gateway) GetNews(ctx context.Context, ticker string, limit int) []models.NewsItem {
	ticker = normalize(ticker)
	if ticker == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}
	key := cache.Key(models.CacheKindNews, ticker, strconv.Itoa(limit))

	news, err := cache.Fetch(ctx, g.cache, models.CacheKindNews, key, func(ctx context.Context) ([]models.NewsItem, error) {
		return g.source.GetNews(ctx, ticker, limit)
	})
	if err != nil {
		g.logger.Warn().Str("ticker", ticker).Err(err).Msg("News unavailable")
		return nil
	}
	return news
}
