package rebalance

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

func holding(ticker string, value, price float64) models.Holding {
	return models.Holding{Ticker: ticker, MarketValue: value, Price: price, FXRate: 1, Priced: true}
}

func defaults() Params {
	return Params{Threshold: 100, Tolerance: 0.01, DriftAlertPct: 5}
}

func TestCalculate_SeventyThirtyToFiftyFifty(t *testing.T) {
	holdings := []models.Holding{holding("AAA", 7000, 100), holding("BBB", 3000, 30)}
	plan := Calculate(holdings, map[string]float64{"AAA": 50, "BBB": 50}, defaults())

	assert.Equal(t, 10000.0, plan.TotalValue)
	require.Len(t, plan.Actions, 2)

	sell := plan.Actions[0]
	assert.Equal(t, "AAA", sell.Ticker)
	assert.Equal(t, models.TradeSell, sell.Direction)
	assert.InDelta(t, -2000, sell.TradeAmount, 1e-9)
	assert.Equal(t, int64(-20), sell.TradeShares)
	assert.InDelta(t, 70, sell.CurrentPct, 1e-9)
	assert.InDelta(t, -20, sell.DiffPct, 1e-9)

	buy := plan.Actions[1]
	assert.Equal(t, "BBB", buy.Ticker)
	assert.Equal(t, models.TradeBuy, buy.Direction)
	assert.InDelta(t, 2000, buy.TradeAmount, 1e-9)
	assert.Equal(t, int64(66), buy.TradeShares)

	assert.True(t, plan.TargetsValid)
	assert.InDelta(t, 20, plan.MaxDriftPct, 1e-9)
	assert.True(t, plan.DriftAlert)
}

func TestCalculate_FractionalSharesAreFloored(t *testing.T) {
	holdings := []models.Holding{holding("AAA", 7000, 800), holding("BBB", 3000, 800)}
	plan := Calculate(holdings, map[string]float64{"AAA": 50, "BBB": 50}, defaults())

	require.Len(t, plan.Actions, 2)
	assert.Equal(t, int64(-3), plan.Actions[0].TradeShares, "a 2.5 share sell floors to -3")
	assert.Equal(t, int64(2), plan.Actions[1].TradeShares)
}

func TestCalculate_ImmaterialDiffsProduceNoAction(t *testing.T) {
	holdings := []models.Holding{holding("AAA", 5050, 10), holding("BBB", 4950, 10)}
	plan := Calculate(holdings, map[string]float64{"AAA": 50, "BBB": 50}, defaults())
	assert.Empty(t, plan.Actions)
	assert.Len(t, plan.Allocations, 2)
	assert.False(t, plan.DriftAlert)

	// exactly at the threshold is not material
	holdings = []models.Holding{holding("AAA", 5100, 10), holding("BBB", 4900, 10)}
	plan = Calculate(holdings, map[string]float64{"AAA": 50, "BBB": 50}, defaults())
	assert.Empty(t, plan.Actions)
}

func TestCalculate_UsesReportingCurrencyPrice(t *testing.T) {
	h := models.Holding{Ticker: "AAPL", MarketValue: 150000, Price: 100, FXRate: 150}
	plan := Calculate([]models.Holding{h, holding("7203.T", 150000, 2000)}, map[string]float64{"AAPL": 100}, defaults())

	require.Len(t, plan.Actions, 2)
	assert.Equal(t, 15000.0, plan.Actions[0].Price)
	assert.Equal(t, int64(10), plan.Actions[0].TradeShares)
	assert.Equal(t, int64(-75), plan.Actions[1].TradeShares)
	assert.Equal(t, 0.0, plan.Allocations[1].TargetPct)
}

func TestCalculate_TargetForUnheldTicker(t *testing.T) {
	plan := Calculate([]models.Holding{holding("AAA", 1000, 10)}, map[string]float64{"AAA": 50, "ZZZ": 50}, defaults())
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, "ZZZ", plan.Actions[1].Ticker)
	assert.Equal(t, int64(0), plan.Actions[1].TradeShares, "no price means no share count")
	assert.InDelta(t, 500, plan.Actions[1].TradeAmount, 1e-9)
}

func TestCalculate_ReportsTargetDiscrepancy(t *testing.T) {
	plan := Calculate([]models.Holding{holding("AAA", 1000, 10)}, map[string]float64{"AAA": 90}, defaults())
	assert.False(t, plan.TargetsValid)
	assert.InDelta(t, 90, plan.TargetSumPct, 1e-12)
	assert.InDelta(t, -10, plan.TargetGapPct, 1e-12)
}

func TestCalculate_EmptyPortfolio(t *testing.T) {
	plan := Calculate(nil, map[string]float64{"AAA": 100}, defaults())
	assert.Equal(t, 0.0, plan.TotalValue)
	assert.Empty(t, plan.Actions)
	for _, a := range plan.Allocations {
		if math.IsNaN(a.CurrentPct) {
			t.Errorf("current pct for %s is NaN", a.Ticker)
		}
	}
}

func TestValidateTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets map[string]float64
		wantErr bool
	}{
		{"exact", map[string]float64{"A": 60, "B": 40}, false},
		{"within tolerance", map[string]float64{"A": 33.333, "B": 33.333, "C": 33.334}, false},
		{"short", map[string]float64{"A": 60, "B": 30}, true},
		{"over", map[string]float64{"A": 60, "B": 50}, true},
		{"negative", map[string]float64{"A": 110, "B": -10}, true},
		{"nan", map[string]float64{"A": math.NaN()}, true},
		{"empty", map[string]float64{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargets(tt.targets, 0.01)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTargets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, common.ErrInputValidation) {
				t.Errorf("error kind = %v, want input validation", common.KindOf(err))
			}
		})
	}
}

func TestEqualTargets(t *testing.T) {
	got := EqualTargets([]string{"A", "B", "C", "A"})
	require.Len(t, got, 3)
	assert.InDelta(t, 100.0/3, got["A"], 1e-12)
	assert.NoError(t, ValidateTargets(got, 1e-9))
	assert.Empty(t, EqualTargets(nil))
}
