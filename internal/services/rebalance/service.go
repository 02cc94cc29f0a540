// Package rebalance compares current allocations against target percentages
// and proposes the trades that would close material gaps.
package rebalance

import (
	"math"
	"sort"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/quant"
)

// Params configures a rebalance calculation.
type Params struct {
	Threshold     float64 // minimum |diff value| in reporting currency for an action
	Tolerance     float64 // allowed |Σtargets − 100| in percentage points
	DriftAlertPct float64
}

// ParamsFromConfig builds Params from the analytics configuration.
func ParamsFromConfig(cfg common.AnalyticsConfig) Params {
	return Params{
		Threshold:     cfg.MaterialityThreshold,
		Tolerance:     cfg.TargetTolerance,
		DriftAlertPct: cfg.DriftAlertPct,
	}
}

type line struct {
	ticker string
	value  float64
	price  float64 // reporting currency
}

// Calculate builds the rebalance plan. Held tickers without a target are
// treated as 0%; targets for tickers not held appear with a zero current
// value and, lacking a price, a zero share count. Targets are not enforced
// here: the plan reports their sum and whether it is within tolerance.
func Calculate(holdings []models.Holding, targets map[string]float64, p Params) *models.RebalancePlan {
	lines := make([]line, 0, len(holdings))
	index := make(map[string]int, len(holdings))
	for _, h := range holdings {
		price := h.Price
		if h.FXRate > 0 {
			price *= h.FXRate
		}
		if i, ok := index[h.Ticker]; ok {
			lines[i].value += h.MarketValue
			continue
		}
		index[h.Ticker] = len(lines)
		lines = append(lines, line{ticker: h.Ticker, value: h.MarketValue, price: price})
	}

	extra := make([]string, 0)
	for t := range targets {
		if _, ok := index[t]; !ok {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	for _, t := range extra {
		index[t] = len(lines)
		lines = append(lines, line{ticker: t})
	}

	total := 0.0
	for _, l := range lines {
		total += l.value
	}

	sum := TargetSum(targets)
	plan := &models.RebalancePlan{
		TotalValue:   total,
		Allocations:  make([]models.AllocationRow, 0, len(lines)),
		Actions:      make([]models.RebalanceAction, 0),
		TargetSumPct: sum,
		TargetGapPct: sum - 100,
		TargetsValid: ValidateTargets(targets, p.Tolerance) == nil,
		Threshold:    p.Threshold,
	}

	for _, l := range lines {
		target := targets[l.ticker]
		currentPct := quant.SafeDiv(l.value, total) * 100
		targetValue := total * target / 100
		diff := targetValue - l.value
		diffPct := target - currentPct

		plan.Allocations = append(plan.Allocations, models.AllocationRow{
			Ticker:       l.ticker,
			CurrentValue: l.value,
			CurrentPct:   currentPct,
			TargetPct:    target,
			DiffPct:      diffPct,
			TargetValue:  targetValue,
			DiffValue:    diff,
		})
		plan.MaxDriftPct = math.Max(plan.MaxDriftPct, math.Abs(diffPct))

		if math.Abs(diff) <= p.Threshold {
			continue
		}
		direction := models.TradeBuy
		if diff < 0 {
			direction = models.TradeSell
		}
		var shares int64
		if l.price > 0 {
			shares = int64(math.Floor(diff / l.price))
		}
		plan.Actions = append(plan.Actions, models.RebalanceAction{
			Ticker:      l.ticker,
			Direction:   direction,
			CurrentPct:  currentPct,
			TargetPct:   target,
			DiffPct:     diffPct,
			TradeAmount: diff,
			TradeShares: shares,
			Price:       l.price,
		})
	}
	plan.DriftAlert = plan.MaxDriftPct > p.DriftAlertPct
	return plan
}

// TargetSum adds the target percentages.
func TargetSum(targets map[string]float64) float64 {
	sum := 0.0
	for _, v := range targets {
		sum += v
	}
	return sum
}

// ValidateTargets checks each target is within [0, 100] and that they sum to
// 100 within tolerance percentage points.
func ValidateTargets(targets map[string]float64, tolerance float64) error {
	const op = "rebalance.ValidateTargets"
	if len(targets) == 0 {
		return common.NewError(common.KindInputValidation, op, "no targets given")
	}
	for t, v := range targets {
		if !quant.IsFinite(v) || v < 0 || v > 100 {
			return common.NewError(common.KindInputValidation, op, "target for %s must be between 0 and 100, got %v", t, v)
		}
	}
	if sum := TargetSum(targets); math.Abs(sum-100) > tolerance {
		return common.NewError(common.KindInputValidation, op, "targets sum to %.4f%%, want 100%%", sum)
	}
	return nil
}

// EqualTargets splits 100% evenly across the distinct tickers.
func EqualTargets(tickers []string) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		out[t] = 0
	}
	if len(out) == 0 {
		return out
	}
	each := 100 / float64(len(out))
	for t := range out {
		out[t] = each
	}
	return out
}
