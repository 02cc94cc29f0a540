// Package valuation values positions in the reporting currency and
// aggregates the holdings into a portfolio summary.
package valuation

import (
	"strings"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/portfolio"
	"github.com/bobmcallan/folio/internal/quant"
)

// MarketInput is the market data for one valuation pass, keyed by ticker.
type MarketInput struct {
	Quotes  map[string]models.Quote
	History map[string][]models.PriceBar // ascending by date
	FXRate  float64                      // reporting currency per unit of foreign currency
}

// Valuator converts positions into reporting-currency holdings.
type Valuator struct {
	reportingCurrency string
	foreignCurrency   string
	localSuffix       string
}

// NewValuator builds a valuator from the analytics configuration. The
// foreign currency is the base of the configured FX pair ("USDJPY" -> "USD").
func NewValuator(cfg common.AnalyticsConfig) *Valuator {
	foreign := "USD"
	if len(cfg.FXPair) >= 6 {
		foreign = strings.ToUpper(cfg.FXPair[:3])
	}
	return &Valuator{
		reportingCurrency: strings.ToUpper(cfg.ReportingCurrency),
		foreignCurrency:   foreign,
		localSuffix:       strings.ToUpper(cfg.LocalSuffix),
	}
}

// ReportingCurrency returns the currency all holdings are expressed in.
func (v *Valuator) ReportingCurrency() string {
	return v.reportingCurrency
}

// IsLocal reports whether a ticker is priced in the reporting currency.
func (v *Valuator) IsLocal(ticker string) bool {
	return v.localSuffix != "" && strings.HasSuffix(strings.ToUpper(ticker), v.localSuffix)
}

// CurrencyFor returns the pricing currency implied by the ticker suffix.
func (v *Valuator) CurrencyFor(ticker string) string {
	if v.IsLocal(ticker) {
		return v.reportingCurrency
	}
	return v.foreignCurrency
}

// FXFor returns the multiplier from the ticker's currency to the reporting
// currency: 1 for local tickers, fx otherwise.
func (v *Valuator) FXFor(ticker string, fx float64) float64 {
	if v.IsLocal(ticker) {
		return 1
	}
	return fx
}

// ResolvePrice prefers a positive live quote and falls back to the most
// recent positive close. It returns 0 when neither exists.
func ResolvePrice(q models.Quote, history []models.PriceBar) float64 {
	if q.Price > 0 {
		return q.Price
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Close > 0 {
			return history[i].Close
		}
	}
	return 0
}

// ResolvePreviousClose prefers the quote's previous close, then the
// second-to-last close in history, then the resolved price itself (a zero
// daily change).
func ResolvePreviousClose(q models.Quote, history []models.PriceBar, price float64) float64 {
	if q.PreviousClose > 0 {
		return q.PreviousClose
	}
	if n := len(history); n >= 2 && history[n-2].Close > 0 {
		return history[n-2].Close
	}
	return price
}

// Value computes one holding per distinct ticker, in first-appearance order.
// Duplicate tickers are merged first. A ticker without a resolvable price,
// or a foreign ticker without a usable FX rate, yields a zero-valued holding.
func (v *Valuator) Value(positions []models.Position, in MarketInput) []models.Holding {
	merged := portfolio.Merge(positions)
	holdings := make([]models.Holding, 0, len(merged))

	for _, p := range merged {
		q := in.Quotes[p.Ticker]
		history := in.History[p.Ticker]
		fx := v.FXFor(p.Ticker, in.FXRate)

		h := models.Holding{
			Ticker:        p.Ticker,
			Name:          q.Name,
			Sector:        q.Sector,
			Currency:      v.CurrencyFor(p.Ticker),
			Shares:        p.Shares,
			CostPerShare:  p.CostPrice,
			FXRate:        fx,
			DividendYield: q.DividendYield,
		}

		price := ResolvePrice(q, history)
		if price <= 0 || fx <= 0 {
			holdings = append(holdings, h)
			continue
		}

		prev := ResolvePreviousClose(q, history, price)

		h.Price = price
		h.PreviousClose = prev
		h.Priced = true
		h.MarketValue = price * p.Shares * fx
		h.CostTotal = p.CostPrice * p.Shares * fx
		h.PnL = h.MarketValue - h.CostTotal
		h.PnLPct = quant.SafeDiv(h.PnL, h.CostTotal) * 100
		h.DailyChange = (price - prev) * p.Shares * fx
		h.DailyChangePct = quant.SafeDiv(price-prev, prev) * 100

		holdings = append(holdings, h)
	}

	assignWeights(holdings)
	return holdings
}

func assignWeights(holdings []models.Holding) {
	total := 0.0
	for _, h := range holdings {
		if h.MarketValue > 0 {
			total += h.MarketValue
		}
	}
	for i := range holdings {
		if total > 0 && holdings[i].MarketValue > 0 {
			holdings[i].Weight = holdings[i].MarketValue / total
		} else {
			holdings[i].Weight = 0
		}
	}
}
