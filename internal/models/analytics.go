package models

import "time"

// ReturnSeries is a date-indexed sequence of fractional periodic returns.
// Dates and Values are parallel and ordered by date ascending.
type ReturnSeries struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Len returns the number of observations.
func (s ReturnSeries) Len() int {
	return len(s.Values)
}

// IsEmpty reports whether the series has no observations.
func (s ReturnSeries) IsEmpty() bool {
	return len(s.Values) == 0
}

// RiskMetrics holds the portfolio risk statistics over one return window.
type RiskMetrics struct {
	Observations int     `json:"observations"`
	Sufficient   bool    `json:"sufficient"`
	Volatility   float64 `json:"volatility"`
	ExcessReturn float64 `json:"excess_return"`
	Sharpe       float64 `json:"sharpe"`
	Sortino      float64 `json:"sortino"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	VaR95        float64 `json:"var_95"`
	VaR99        float64 `json:"var_99"`
	TotalReturn  float64 `json:"total_return"`
	CAGR         float64 `json:"cagr"`
	Beta         float64 `json:"beta"`
}

// CorrelationMatrix is a square Pearson correlation matrix keyed by Tickers.
type CorrelationMatrix struct {
	Tickers []string    `json:"tickers"`
	Values  [][]float64 `json:"values"`
}

// AssetRiskReturn places one asset on the risk/return map.
type AssetRiskReturn struct {
	Ticker      string  `json:"ticker"`
	TotalReturn float64 `json:"total_return"`
	Volatility  float64 `json:"volatility"`
}

// TerminalStats summarises the distribution of simulated terminal values.
type TerminalStats struct {
	Mean              float64 `json:"mean"`
	Median            float64 `json:"median"`
	P5                float64 `json:"p5"`
	P10               float64 `json:"p10"`
	P25               float64 `json:"p25"`
	P75               float64 `json:"p75"`
	P90               float64 `json:"p90"`
	P95               float64 `json:"p95"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	ExpectedReturnPct float64 `json:"expected_return_pct"`
	ProbAboveInitial  float64 `json:"prob_above_initial"`
	ProbDouble        float64 `json:"prob_double"`
	ProbBelowHalf     float64 `json:"prob_below_half"`
}

// SimulationResult holds the simulated value paths and derived analytics.
// Paths has NumPaths rows of Steps+1 columns; column 0 is InitialValue.
type SimulationResult struct {
	InitialValue float64       `json:"initial_value"`
	NumPaths     int           `json:"num_paths"`
	Steps        int           `json:"steps"`
	Mu           float64       `json:"mu"`
	Sigma        float64       `json:"sigma"`
	Paths        [][]float64   `json:"paths,omitempty"`
	P10          []float64     `json:"p10"`
	P50          []float64     `json:"p50"`
	P90          []float64     `json:"p90"`
	Terminal     TerminalStats `json:"terminal"`
}

// IsEmpty reports whether the simulation produced no paths.
func (r *SimulationResult) IsEmpty() bool {
	return r == nil || r.NumPaths == 0
}

// FrontierPortfolio is one weight vector with its annualised return and risk.
type FrontierPortfolio struct {
	Weights        []float64 `json:"weights"`
	ExpectedReturn float64   `json:"expected_return"`
	Volatility     float64   `json:"volatility"`
	Sharpe         float64   `json:"sharpe"`
}

// OptimizedPortfolio is a solver result. Converged is false when the solver
// did not reach an accepted termination status; the weights are then the best
// feasible point found and must not be trusted blindly.
type OptimizedPortfolio struct {
	FrontierPortfolio
	Converged bool   `json:"converged"`
	Method    string `json:"method"`
	Status    string `json:"status"`
}

// FrontierResult is the output of one mean-variance optimization run.
type FrontierResult struct {
	Tickers      []string            `json:"tickers"`
	Observations int                 `json:"observations"`
	Cloud        []FrontierPortfolio `json:"cloud"`
	Current      FrontierPortfolio   `json:"current"`
	MinVariance  OptimizedPortfolio  `json:"min_variance"`
	MaxSharpe    OptimizedPortfolio  `json:"max_sharpe"`
}

// AllocationRow compares the current and target share of one ticker.
type AllocationRow struct {
	Ticker       string  `json:"ticker"`
	CurrentValue float64 `json:"current_value"`
	CurrentPct   float64 `json:"current_pct"`
	TargetPct    float64 `json:"target_pct"`
	DiffPct      float64 `json:"diff_pct"`
	TargetValue  float64 `json:"target_value"`
	DiffValue    float64 `json:"diff_value"`
}

// Trade directions
const (
	TradeBuy  = "buy"
	TradeSell = "sell"
)

// RebalanceAction is a suggested trade for a ticker whose deviation is material.
type RebalanceAction struct {
	Ticker      string  `json:"ticker"`
	Direction   string  `json:"direction"`
	CurrentPct  float64 `json:"current_pct"`
	TargetPct   float64 `json:"target_pct"`
	DiffPct     float64 `json:"diff_pct"`
	TradeAmount float64 `json:"trade_amount"` // signed, reporting currency
	TradeShares int64   `json:"trade_shares"` // signed, floored: a fractional sell rounds up in size
	Price       float64 `json:"price"`        // reporting currency per share
}

// RebalancePlan is the output of a rebalance calculation.
type RebalancePlan struct {
	TotalValue   float64           `json:"total_value"`
	Allocations  []AllocationRow   `json:"allocations"`
	Actions      []RebalanceAction `json:"actions"`
	TargetSumPct float64           `json:"target_sum_pct"`
	TargetGapPct float64           `json:"target_gap_pct"` // TargetSumPct - 100
	TargetsValid bool              `json:"targets_valid"`
	MaxDriftPct  float64           `json:"max_drift_pct"`
	DriftAlert   bool              `json:"drift_alert"`
	Threshold    float64           `json:"threshold"`
}

// Dividend trend classifications
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
	TrendUnknown    = "unknown"
)

// DividendIncome is one dividend event converted to reporting-currency income.
type DividendIncome struct {
	Ticker         string    `json:"ticker"`
	Date           time.Time `json:"date"`
	AmountPerShare float64   `json:"amount_per_share"`
	Shares         float64   `json:"shares"`
	FXRate         float64   `json:"fx_rate"`
	Income         float64   `json:"income"`
}

// MonthlyDividendIncome is income for one ticker in one calendar month.
type MonthlyDividendIncome struct {
	Ticker string    `json:"ticker"`
	Month  time.Time `json:"month"` // first day of month, UTC
	Amount float64   `json:"amount"`
}

// AnnualDividendIncome is income across all tickers for one calendar year.
type AnnualDividendIncome struct {
	Year   int     `json:"year"`
	Amount float64 `json:"amount"`
	Events int     `json:"events"`
}

// DividendMetrics are per-asset dividend statistics.
type DividendMetrics struct {
	Ticker          string  `json:"ticker"`
	TrailingAnnual  float64 `json:"trailing_annual"` // per share, native currency
	TrailingIncome  float64 `json:"trailing_income"` // reporting currency
	Frequency       int     `json:"frequency"`
	Yield           float64 `json:"yield"`
	Trend           string  `json:"trend"`
	LastAmount      float64 `json:"last_amount"`
	LastPaymentDate string  `json:"last_payment_date,omitempty"`
}

// DividendSummary is the portfolio-level dividend overview.
type DividendSummary struct {
	LatestYear       int     `json:"latest_year"`
	LatestYearIncome float64 `json:"latest_year_income"`
	TotalEvents      int     `json:"total_events"`
	AverageDividend  float64 `json:"average_dividend"`
	PortfolioYield   float64 `json:"portfolio_yield"`
}

// DividendReport bundles every dividend aggregate.
type DividendReport struct {
	Events  []DividendIncome        `json:"events"`
	Monthly []MonthlyDividendIncome `json:"monthly"`
	Annual  []AnnualDividendIncome  `json:"annual"`
	Metrics []DividendMetrics       `json:"metrics"`
	Summary DividendSummary         `json:"summary"`
}

// RiskReport combines the blended-portfolio metrics with per-asset context.
type RiskReport struct {
	Lookback    string            `json:"lookback"`
	Benchmark   string            `json:"benchmark,omitempty"`
	Metrics     RiskMetrics       `json:"metrics"`
	Assets      []AssetRiskReturn `json:"assets"`
	Correlation CorrelationMatrix `json:"correlation"`
	Included    []string          `json:"included"`
	Excluded    []string          `json:"excluded,omitempty"`
}
