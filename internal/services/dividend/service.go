// Package dividend converts dividend histories into reporting-currency income
// and aggregates it by month, year and asset.
package dividend

import (
	"sort"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/quant"
)

// Asset is one holding's dividend input.
type Asset struct {
	Ticker string
	Shares float64
	FXRate float64 // 1 for local-currency assets
	Price  float64 // current native price, for yield
	Events []models.DividendEvent
}

// Params configures aggregation.
type Params struct {
	Now        time.Time
	TrendYears int
	TotalValue float64 // portfolio value in reporting currency, for the summary yield
}

// ParamsFromConfig builds Params from the analytics configuration.
func ParamsFromConfig(cfg common.AnalyticsConfig, now time.Time, totalValue float64) Params {
	return Params{Now: now, TrendYears: cfg.DividendTrendYears, TotalValue: totalValue}
}

// calendarDate drops the time of day and zone, keeping the date as written.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Aggregate builds the dividend report for assets.
func Aggregate(assets []Asset, p Params) *models.DividendReport {
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	if p.TrendYears <= 0 {
		p.TrendYears = 3
	}
	now := calendarDate(p.Now)

	report := &models.DividendReport{
		Events:  make([]models.DividendIncome, 0),
		Monthly: make([]models.MonthlyDividendIncome, 0),
		Annual:  make([]models.AnnualDividendIncome, 0),
		Metrics: make([]models.DividendMetrics, 0, len(assets)),
	}

	type monthKey struct {
		ticker string
		month  time.Time
	}
	monthly := make(map[monthKey]float64)
	annual := make(map[int]*models.AnnualDividendIncome)
	var perShareSum, trailingIncome float64

	for _, a := range assets {
		fx := a.FXRate
		if fx <= 0 {
			fx = 1
		}
		events := make([]models.DividendIncome, 0, len(a.Events))
		for _, e := range a.Events {
			if !quant.IsFinite(e.AmountPerShare) || e.AmountPerShare <= 0 {
				continue
			}
			d := calendarDate(e.Date)
			inc := models.DividendIncome{
				Ticker:         a.Ticker,
				Date:           d,
				AmountPerShare: e.AmountPerShare,
				Shares:         a.Shares,
				FXRate:         fx,
				Income:         e.AmountPerShare * a.Shares * fx,
			}
			events = append(events, inc)

			monthly[monthKey{a.Ticker, monthOf(d)}] += inc.Income
			y := annual[d.Year()]
			if y == nil {
				y = &models.AnnualDividendIncome{Year: d.Year()}
				annual[d.Year()] = y
			}
			y.Amount += inc.Income
			y.Events++
			perShareSum += e.AmountPerShare
		}
		sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })

		m := metrics(a, events, now, p.TrendYears)
		trailingIncome += m.TrailingIncome
		report.Metrics = append(report.Metrics, m)
		report.Events = append(report.Events, events...)
	}

	sort.SliceStable(report.Events, func(i, j int) bool { return report.Events[i].Date.Before(report.Events[j].Date) })

	for k, v := range monthly {
		report.Monthly = append(report.Monthly, models.MonthlyDividendIncome{Ticker: k.ticker, Month: k.month, Amount: v})
	}
	sort.Slice(report.Monthly, func(i, j int) bool {
		a, b := report.Monthly[i], report.Monthly[j]
		if !a.Month.Equal(b.Month) {
			return a.Month.Before(b.Month)
		}
		return a.Ticker < b.Ticker
	})

	for _, y := range annual {
		report.Annual = append(report.Annual, *y)
	}
	sort.Slice(report.Annual, func(i, j int) bool { return report.Annual[i].Year < report.Annual[j].Year })

	s := models.DividendSummary{TotalEvents: len(report.Events)}
	if n := len(report.Annual); n > 0 {
		latest := report.Annual[n-1]
		s.LatestYear = latest.Year
		s.LatestYearIncome = latest.Amount
	}
	if s.TotalEvents > 0 {
		s.AverageDividend = perShareSum / float64(s.TotalEvents)
	}
	s.PortfolioYield = quant.SafeDiv(trailingIncome, p.TotalValue)
	report.Summary = s
	return report
}

// metrics computes trailing-twelve-month figures and the trend over the last
// trendYears. events must be sorted by date.
func metrics(a Asset, events []models.DividendIncome, now time.Time, trendYears int) models.DividendMetrics {
	m := models.DividendMetrics{Ticker: a.Ticker, Trend: models.TrendUnknown}
	if len(events) == 0 {
		return m
	}

	yearAgo := now.AddDate(-1, 0, 0)
	trendFrom := now.AddDate(-trendYears, 0, 0)
	var window []float64
	for _, e := range events {
		if e.Date.After(now) {
			continue
		}
		if e.Date.After(yearAgo) {
			m.TrailingAnnual += e.AmountPerShare
			m.TrailingIncome += e.Income
			m.Frequency++
		}
		if e.Date.After(trendFrom) {
			window = append(window, e.AmountPerShare)
		}
	}

	last := events[len(events)-1]
	m.LastAmount = last.AmountPerShare
	m.LastPaymentDate = last.Date.Format("2006-01-02")
	m.Yield = quant.SafeDiv(m.TrailingAnnual, a.Price)
	m.Trend = Trend(window)
	return m
}

// Trend classifies a chronological run of per-share amounts by comparing the
// first and last. Fewer than two amounts is unknown.
func Trend(amounts []float64) string {
	if len(amounts) < 2 {
		return models.TrendUnknown
	}
	first, last := amounts[0], amounts[len(amounts)-1]
	switch {
	case last > first:
		return models.TrendIncreasing
	case last < first:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}
