// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// MarketDataSource is an upstream market-data provider. Unlike the gateway it
// reports failures as errors.
type MarketDataSource interface {
	// GetEOD retrieves end-of-day price bars in ascending date order
	GetEOD(ctx context.Context, ticker string, opts ...EODOption) ([]models.PriceBar, error)

	// GetQuote retrieves the latest quote
	GetQuote(ctx context.Context, ticker string) (*models.Quote, error)

	// GetDividends retrieves dividend events on or after from
	GetDividends(ctx context.Context, ticker string, from time.Time) ([]models.DividendEvent, error)

	// GetExchangeRate retrieves the latest rate for a currency pair such as "USDJPY"
	GetExchangeRate(ctx context.Context, pair string) (float64, error)

	// GetNews retrieves recent headlines for a ticker
	GetNews(ctx context.Context, ticker string, limit int) ([]models.NewsItem, error)
}

// EODOption configures EOD data requests
type EODOption func(*EODParams)

// EODParams holds EOD query parameters
type EODParams struct {
	From   time.Time
	To     time.Time
	Period string // d=daily, w=weekly, m=monthly
}

// WithDateRange sets the date range for EOD query
func WithDateRange(from, to time.Time) EODOption {
	return func(p *EODParams) {
		p.From = from
		p.To = to
	}
}

// WithPeriod sets the period for EOD query
func WithPeriod(period string) EODOption {
	return func(p *EODParams) {
		p.Period = period
	}
}

// MarketDataGateway is the analytics engine's view of market data. Every
// method tolerates unknown tickers and upstream failures by returning an
// empty or zero result.
type MarketDataGateway interface {
	GetPriceHistory(ctx context.Context, ticker string, lookback time.Duration) []models.PriceBar
	GetQuote(ctx context.Context, ticker string) models.Quote
	GetDividendHistory(ctx context.Context, ticker string) []models.DividendEvent
	GetExchangeRate(ctx context.Context, pair string) float64
	GetNews(ctx context.Context, ticker string, limit int) []models.NewsItem
}
