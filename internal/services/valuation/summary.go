package valuation

import (
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/quant"
)

// Summarize aggregates holdings into portfolio totals. Daily change and
// dividend yield are averaged with weights value/totalValue; an empty or
// zero-valued portfolio yields an all-zero summary.
func Summarize(holdings []models.Holding, currency string) models.PortfolioSummary {
	s := models.PortfolioSummary{
		Currency:     currency,
		HoldingCount: len(holdings),
	}

	for _, h := range holdings {
		s.TotalValue += h.MarketValue
		s.TotalCost += h.CostTotal
		s.TotalPnL += h.PnL
		s.DailyChange += h.DailyChange
	}
	s.TotalPnLPct = quant.SafeDiv(s.TotalPnL, s.TotalCost) * 100

	if s.TotalValue > 0 {
		for _, h := range holdings {
			if h.MarketValue <= 0 {
				continue
			}
			w := h.MarketValue / s.TotalValue
			s.DailyChangePct += w * h.DailyChangePct
			s.DividendYield += w * h.DividendYield
		}
	}

	s.BestPerformer, s.WorstPerformer = performers(holdings)
	return s
}

// performers picks the highest and lowest P&L percentage among priced
// holdings with a cost basis.
func performers(holdings []models.Holding) (best, worst *models.Performer) {
	for _, h := range holdings {
		if !h.Priced || h.CostTotal <= 0 {
			continue
		}
		if best == nil || h.PnLPct > best.PnLPct {
			best = &models.Performer{Ticker: h.Ticker, PnLPct: h.PnLPct}
		}
		if worst == nil || h.PnLPct < worst.PnLPct {
			worst = &models.Performer{Ticker: h.Ticker, PnLPct: h.PnLPct}
		}
	}
	return best, worst
}

// Valuate runs a full valuation pass.
func (v *Valuator) Valuate(positions []models.Position, in MarketInput) *models.Valuation {
	holdings := v.Value(positions, in)
	return &models.Valuation{
		Holdings: holdings,
		Summary:  Summarize(holdings, v.reportingCurrency),
		FXRate:   in.FXRate,
	}
}
