// Package risk computes portfolio risk statistics from daily return series.
package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/quant"
	"github.com/bobmcallan/folio/internal/services/returns"
)

// Params are the externally settable constants for risk computation.
type Params struct {
	PeriodsPerYear  int
	RiskFreeRate    float64 // annualized
	MinObservations int
}

// ParamsFromConfig reads Params from the analytics configuration.
func ParamsFromConfig(cfg common.AnalyticsConfig) Params {
	return Params{
		PeriodsPerYear:  cfg.PeriodsPerYear,
		RiskFreeRate:    cfg.RiskFreeRate,
		MinObservations: cfg.MinObservations,
	}
}

func (p Params) withDefaults() Params {
	if p.PeriodsPerYear <= 0 {
		p.PeriodsPerYear = 252
	}
	if p.MinObservations <= 0 {
		p.MinObservations = 10
	}
	return p
}

// Compute returns the risk metrics of a portfolio return series. With fewer
// than MinObservations returns the result is the zero record with
// Sufficient=false. benchmark may be empty, in which case Beta is 0.
func Compute(series, benchmark models.ReturnSeries, p Params) models.RiskMetrics {
	p = p.withDefaults()
	r := series.Values
	m := models.RiskMetrics{Observations: len(r)}
	if len(r) < p.MinObservations {
		return m
	}
	m.Sufficient = true

	periods := float64(p.PeriodsPerYear)
	sqrtP := math.Sqrt(periods)

	m.Volatility = quant.StdDev(r) * sqrtP
	m.ExcessReturn = quant.Mean(r)*periods - p.RiskFreeRate
	m.Sharpe = quant.SafeDiv(m.ExcessReturn, m.Volatility)

	var downside []float64
	for _, v := range r {
		if v < 0 {
			downside = append(downside, v)
		}
	}
	m.Sortino = quant.SafeDiv(m.ExcessReturn, quant.StdDev(downside)*sqrtP)

	m.MaxDrawdown = MaxDrawdown(r)

	sorted := append([]float64(nil), r...)
	sort.Float64s(sorted)
	m.VaR95 = quant.PercentileSorted(sorted, 5)
	m.VaR99 = quant.PercentileSorted(sorted, 1)

	m.TotalReturn = quant.TotalReturn(r)
	m.CAGR = math.Pow(1+m.TotalReturn, periods/float64(len(r))) - 1
	if !quant.IsFinite(m.CAGR) {
		m.CAGR = 0
	}

	if !benchmark.IsEmpty() {
		m.Beta = Beta(series, benchmark, p.MinObservations)
	}
	return m
}

// MaxDrawdown returns the most negative peak-to-trough decline of the
// cumulative wealth index. It is always <= 0.
func MaxDrawdown(r []float64) float64 {
	idx := quant.WealthIndex(r)
	maxDD := 0.0
	peak := math.Inf(-1)
	for _, w := range idx {
		if w > peak {
			peak = w
		}
		if peak > 0 {
			if dd := (w - peak) / peak; dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Beta is cov(portfolio, benchmark) / var(benchmark) over common dates. It
// is 0 with fewer than minOverlap common points or a constant benchmark.
func Beta(portfolio, benchmark models.ReturnSeries, minOverlap int) float64 {
	x, y := returns.AlignPair(portfolio, benchmark)
	if len(x) < minOverlap || len(x) < 2 {
		return 0
	}
	return quant.SafeDiv(quant.Covariance(x, y), quant.Variance(y))
}

// CorrelationMatrix returns pairwise Pearson correlations of the aligned
// asset returns. It needs at least two assets and two common observations.
// A constant series correlates 0 with everything but itself.
func CorrelationMatrix(a *returns.Aligned) (models.CorrelationMatrix, error) {
	const op = "risk.CorrelationMatrix"
	if a == nil || len(a.Tickers) < 2 {
		n := 0
		if a != nil {
			n = len(a.Tickers)
		}
		return models.CorrelationMatrix{}, common.NewError(common.KindInsufficientData, op, "need at least 2 assets with history, have %d", n)
	}
	n, k := a.Len(), len(a.Tickers)
	if n < 2 {
		return models.CorrelationMatrix{}, common.NewError(common.KindInsufficientData, op, "need at least 2 common observations, have %d", n)
	}

	data := mat.NewDense(n, k, nil)
	for j := 0; j < k; j++ {
		data.SetCol(j, a.Returns[j])
	}
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, data, nil)

	out := models.CorrelationMatrix{
		Tickers: append([]string(nil), a.Tickers...),
		Values:  make([][]float64, k),
	}
	for i := 0; i < k; i++ {
		out.Values[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			v := corr.At(i, j)
			switch {
			case i == j:
				v = 1
			case !quant.IsFinite(v):
				v = 0
			}
			out.Values[i][j] = v
		}
	}
	return out, nil
}

// AssetRiskReturns places each aligned asset on the risk/return map using
// its compounded total return and annualized volatility.
func AssetRiskReturns(a *returns.Aligned, periodsPerYear int) []models.AssetRiskReturn {
	if a == nil {
		return nil
	}
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}
	out := make([]models.AssetRiskReturn, len(a.Tickers))
	for i, t := range a.Tickers {
		out[i] = models.AssetRiskReturn{
			Ticker:      t,
			TotalReturn: quant.TotalReturn(a.Returns[i]),
			Volatility:  quant.StdDev(a.Returns[i]) * math.Sqrt(float64(periodsPerYear)),
		}
	}
	return out
}
