package dividend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func event(t time.Time, amount float64) models.DividendEvent {
	return models.DividendEvent{Date: t, AmountPerShare: amount}
}

var now = date(2025, 6, 30)

func TestAggregate_ForeignEventConvertedAtFX(t *testing.T) {
	report := Aggregate([]Asset{{
		Ticker: "AAPL",
		Shares: 100,
		FXRate: 150,
		Price:  200,
		Events: []models.DividendEvent{event(date(2025, 5, 15), 1.0)},
	}}, Params{Now: now})

	require.Len(t, report.Events, 1)
	assert.Equal(t, 150.0, report.Events[0].Income)
	require.Len(t, report.Monthly, 1)
	assert.Equal(t, date(2025, 5, 1), report.Monthly[0].Month)
	assert.Equal(t, 150.0, report.Monthly[0].Amount)
	require.Len(t, report.Annual, 1)
	assert.Equal(t, 2025, report.Annual[0].Year)
	assert.Equal(t, 150.0, report.Annual[0].Amount)
}

func TestAggregate_LocalAssetIgnoresFX(t *testing.T) {
	report := Aggregate([]Asset{{Ticker: "7203.T", Shares: 100, FXRate: 1, Events: []models.DividendEvent{event(date(2025, 3, 31), 30)}}}, Params{Now: now})
	assert.Equal(t, 3000.0, report.Events[0].Income)
}

func TestAggregate_MonthlyAndAnnualTotals(t *testing.T) {
	assets := []Asset{
		{Ticker: "AAA", Shares: 10, FXRate: 1, Events: []models.DividendEvent{
			event(date(2024, 3, 1), 1), event(date(2024, 3, 20), 2), event(date(2025, 3, 1), 3),
		}},
		{Ticker: "BBB", Shares: 5, FXRate: 1, Events: []models.DividendEvent{
			event(date(2024, 3, 15), 4), event(date(2024, 9, 15), 4),
		}},
	}
	report := Aggregate(assets, Params{Now: now})

	want := []models.MonthlyDividendIncome{
		{Ticker: "AAA", Month: date(2024, 3, 1), Amount: 30},
		{Ticker: "BBB", Month: date(2024, 3, 1), Amount: 20},
		{Ticker: "BBB", Month: date(2024, 9, 1), Amount: 20},
		{Ticker: "AAA", Month: date(2025, 3, 1), Amount: 30},
	}
	assert.Equal(t, want, report.Monthly)
	assert.Equal(t, []models.AnnualDividendIncome{
		{Year: 2024, Amount: 70, Events: 4},
		{Year: 2025, Amount: 30, Events: 1},
	}, report.Annual)

	assert.Equal(t, 5, report.Summary.TotalEvents)
	assert.Equal(t, 2025, report.Summary.LatestYear)
	assert.Equal(t, 30.0, report.Summary.LatestYearIncome)
	assert.InDelta(t, 14.0/5, report.Summary.AverageDividend, 1e-12)

	for i := 1; i < len(report.Events); i++ {
		assert.False(t, report.Events[i].Date.Before(report.Events[i-1].Date))
	}
}

func TestAggregate_TimezonesCollapseToCalendarDate(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	report := Aggregate([]Asset{{Ticker: "AAA", Shares: 1, FXRate: 1, Events: []models.DividendEvent{
		event(time.Date(2025, 4, 1, 0, 30, 0, 0, tokyo), 1),
	}}}, Params{Now: now})
	assert.Equal(t, date(2025, 4, 1), report.Events[0].Date)
	assert.Equal(t, date(2025, 4, 1), report.Monthly[0].Month)
}

func TestAggregate_TrailingMetrics(t *testing.T) {
	asset := Asset{Ticker: "AAA", Shares: 10, FXRate: 2, Price: 50, Events: []models.DividendEvent{
		event(date(2022, 12, 1), 0.5),
		event(date(2023, 12, 1), 0.6),
		event(date(2024, 6, 30), 0.7), // exactly one year ago: outside the trailing window
		event(date(2024, 12, 1), 0.8),
		event(date(2025, 6, 1), 0.9),
	}}
	report := Aggregate([]Asset{asset}, Params{Now: now, TotalValue: 1000})
	require.Len(t, report.Metrics, 1)
	m := report.Metrics[0]

	assert.InDelta(t, 1.7, m.TrailingAnnual, 1e-12)
	assert.InDelta(t, 34, m.TrailingIncome, 1e-12)
	assert.Equal(t, 2, m.Frequency)
	assert.InDelta(t, 1.7/50, m.Yield, 1e-12)
	assert.Equal(t, models.TrendIncreasing, m.Trend)
	assert.Equal(t, 0.9, m.LastAmount)
	assert.Equal(t, "2025-06-01", m.LastPaymentDate)
	assert.InDelta(t, 0.034, report.Summary.PortfolioYield, 1e-12)
}

func TestAggregate_NoEvents(t *testing.T) {
	report := Aggregate([]Asset{{Ticker: "AAA", Shares: 10, Price: 10}}, Params{Now: now})
	assert.Empty(t, report.Events)
	assert.Empty(t, report.Monthly)
	require.Len(t, report.Metrics, 1)
	assert.Equal(t, models.TrendUnknown, report.Metrics[0].Trend)
	assert.Equal(t, 0.0, report.Metrics[0].Yield)
	assert.Equal(t, models.DividendSummary{}, report.Summary)

	empty := Aggregate(nil, Params{Now: now})
	assert.NotNil(t, empty.Events)
	assert.Empty(t, empty.Metrics)
}

func TestAggregate_SkipsNonPositiveAmounts(t *testing.T) {
	report := Aggregate([]Asset{{Ticker: "AAA", Shares: 1, FXRate: 1, Events: []models.DividendEvent{
		event(date(2025, 1, 1), 0), event(date(2025, 2, 1), -1), event(date(2025, 3, 1), 1),
	}}}, Params{Now: now})
	assert.Len(t, report.Events, 1)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		amounts []float64
		want    string
	}{
		{nil, models.TrendUnknown},
		{[]float64{1}, models.TrendUnknown},
		{[]float64{1, 0.5, 2}, models.TrendIncreasing},
		{[]float64{2, 3, 1}, models.TrendDecreasing},
		{[]float64{1, 2, 1}, models.TrendStable},
	}
	for _, tt := range tests {
		if got := Trend(tt.amounts); got != tt.want {
			t.Errorf("Trend(%v) = %q, want %q", tt.amounts, got, tt.want)
		}
	}
}
