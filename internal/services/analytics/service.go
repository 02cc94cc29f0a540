// Package analytics composes the market-data gateway and the analytics
// components into the operations exposed to hosts.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/portfolio"
	"github.com/bobmcallan/folio/internal/services/dividend"
	"github.com/bobmcallan/folio/internal/services/frontier"
	"github.com/bobmcallan/folio/internal/services/montecarlo"
	"github.com/bobmcallan/folio/internal/services/rebalance"
	"github.com/bobmcallan/folio/internal/services/returns"
	"github.com/bobmcallan/folio/internal/services/risk"
	"github.com/bobmcallan/folio/internal/services/valuation"
)

// maxFetches bounds concurrent gateway calls for one request.
const maxFetches = 8

// fetchShare is the part of a task's progress spent gathering market data.
const fetchShare = 0.1

// Service implements interfaces.AnalyticsService
type Service struct {
	gateway  interfaces.MarketDataGateway
	logger   *common.Logger
	config   common.AnalyticsConfig
	valuator *valuation.Valuator
	validate *validator.Validate
	now      func() time.Time
}

var _ interfaces.AnalyticsService = (*Service)(nil)

// NewService creates the analytics service
func NewService(gateway interfaces.MarketDataGateway, logger *common.Logger, config common.AnalyticsConfig) *Service {
	return &Service{
		gateway:  gateway,
		logger:   logger,
		config:   config,
		valuator: valuation.NewValuator(config),
		validate: validator.New(),
		now:      time.Now,
	}
}

// snapshot is the market data and valuation gathered for one request.
type snapshot struct {
	lookback  time.Duration
	input     valuation.MarketInput
	valuation *models.Valuation
}

// prepare validates positions, fetches quotes, histories and the FX rate
// concurrently, and values the portfolio.
func (s *Service) prepare(ctx context.Context, op string, positions []models.Position, lookback string) (*snapshot, error) {
	if len(positions) == 0 {
		return nil, common.NewError(common.KindInputValidation, op, "no positions")
	}
	for i, p := range positions {
		if err := portfolio.ValidatePosition(p); err != nil {
			return nil, fmt.Errorf("position %d: %w", i+1, err)
		}
	}
	window, err := s.lookback(op, lookback)
	if err != nil {
		return nil, err
	}

	merged := portfolio.Merge(positions)
	in := valuation.MarketInput{
		Quotes:  make(map[string]models.Quote, len(merged)),
		History: make(map[string][]models.PriceBar, len(merged)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetches)
	needFX := false
	for _, p := range merged {
		if !s.valuator.IsLocal(p.Ticker) {
			needFX = true
		}
		g.Go(func() error {
			q := s.gateway.GetQuote(gctx, p.Ticker)
			bars := s.gateway.GetPriceHistory(gctx, p.Ticker, window)
			mu.Lock()
			in.Quotes[p.Ticker] = q
			in.History[p.Ticker] = bars
			mu.Unlock()
			return gctx.Err()
		})
	}
	if needFX {
		g.Go(func() error {
			rate := s.gateway.GetExchangeRate(gctx, s.config.FXPair)
			mu.Lock()
			in.FXRate = rate
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if needFX && in.FXRate <= 0 {
		s.logger.Warn().Str("pair", s.config.FXPair).Msg("No exchange rate, foreign holdings are unpriced")
	}

	return &snapshot{
		lookback:  window,
		input:     in,
		valuation: s.valuator.Valuate(merged, in),
	}, nil
}

func (s *Service) lookback(op, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return s.config.GetLookback(), nil
	}
	d, err := common.ParseLookback(value)
	if err != nil {
		return 0, common.WrapError(common.KindInputValidation, op, err)
	}
	return d, nil
}

func (s *Service) validateOptions(op string, opts interface{}) error {
	err := s.validate.Struct(opts)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return common.NewError(common.KindInputValidation, op, "%s failed %s %s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param())
	}
	return common.WrapError(common.KindInputValidation, op, err)
}

// returnSeries aligns the holdings' daily returns and blends them by
// current value. Unpriced holdings carry no weight.
func (snap *snapshot) returnSeries() *returns.Result {
	holdings := snap.valuation.Holdings
	assets := make([]returns.AssetInput, 0, len(holdings))
	for _, h := range holdings {
		assets = append(assets, returns.AssetInput{
			Ticker: h.Ticker,
			Prices: snap.input.History[h.Ticker],
			Value:  h.MarketValue,
		})
	}
	return returns.Build(assets, returns.MinPoints)
}

func (s *Service) logExcluded(op string, excluded []string) {
	if len(excluded) > 0 {
		s.logger.Info().Str("op", op).Strs("tickers", excluded).Msg("Assets without usable history excluded")
	}
}

// Value returns holdings and the portfolio summary.
func (s *Service) Value(ctx context.Context, positions []models.Position) (*models.Valuation, error) {
	snap, err := s.prepare(ctx, "analytics.Value", positions, "")
	if err != nil {
		return nil, err
	}
	return snap.valuation, nil
}

// Risk returns portfolio risk metrics, the per-asset risk/return map and the
// correlation matrix. Missing data gives zero metrics, not an error.
func (s *Service) Risk(ctx context.Context, positions []models.Position, opts interfaces.RiskOptions) (*models.RiskReport, error) {
	const op = "analytics.Risk"
	snap, err := s.prepare(ctx, op, positions, opts.Lookback)
	if err != nil {
		return nil, err
	}

	res := snap.returnSeries()
	s.logExcluded(op, res.Excluded)

	var bench models.ReturnSeries
	benchmark := strings.ToUpper(strings.TrimSpace(opts.Benchmark))
	if benchmark != "" {
		bench = returns.DailyReturns(s.gateway.GetPriceHistory(ctx, benchmark, snap.lookback))
		if bench.IsEmpty() {
			s.logger.Warn().Str("benchmark", benchmark).Msg("No benchmark history, beta is zero")
		}
	}

	params := risk.ParamsFromConfig(s.config)
	report := &models.RiskReport{
		Lookback:  s.config.Lookback,
		Benchmark: benchmark,
		Metrics:   risk.Compute(res.Portfolio, bench, params),
		Assets:    risk.AssetRiskReturns(res.Aligned, params.PeriodsPerYear),
		Excluded:  res.Excluded,
	}
	if opts.Lookback != "" {
		report.Lookback = opts.Lookback
	}
	if res.Aligned != nil {
		report.Included = append([]string(nil), res.Aligned.Tickers...)
	}
	if corr, err := risk.CorrelationMatrix(res.Aligned); err == nil {
		report.Correlation = corr
	}
	return report, nil
}

// Correlation returns the pairwise correlation of the holdings' returns.
func (s *Service) Correlation(ctx context.Context, positions []models.Position, lookback string) (*models.CorrelationMatrix, error) {
	const op = "analytics.Correlation"
	snap, err := s.prepare(ctx, op, positions, lookback)
	if err != nil {
		return nil, err
	}
	res := snap.returnSeries()
	s.logExcluded(op, res.Excluded)

	corr, err := risk.CorrelationMatrix(res.Aligned)
	if err != nil {
		return nil, err
	}
	return &corr, nil
}

// Rebalance validates targets (percent of total value) and returns the trade plan.
func (s *Service) Rebalance(ctx context.Context, positions []models.Position, targets map[string]float64) (*models.RebalancePlan, error) {
	const op = "analytics.Rebalance"
	params := rebalance.ParamsFromConfig(s.config)

	normalized := make(map[string]float64, len(targets))
	for t, pct := range targets {
		normalized[portfolio.NormalizeTicker(t)] += pct
	}
	if err := rebalance.ValidateTargets(normalized, params.Tolerance); err != nil {
		return nil, err
	}

	snap, err := s.prepare(ctx, op, positions, "")
	if err != nil {
		return nil, err
	}
	return rebalance.Calculate(snap.valuation.Holdings, normalized, params), nil
}

// Dividends returns dividend income by event, month and year with per-asset metrics.
func (s *Service) Dividends(ctx context.Context, positions []models.Position) (*models.DividendReport, error) {
	const op = "analytics.Dividends"
	snap, err := s.prepare(ctx, op, positions, "")
	if err != nil {
		return nil, err
	}

	holdings := snap.valuation.Holdings
	assets := make([]dividend.Asset, len(holdings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetches)
	for i, h := range holdings {
		g.Go(func() error {
			assets[i] = dividend.Asset{
				Ticker: h.Ticker,
				Shares: h.Shares,
				FXRate: h.FXRate,
				Price:  h.Price,
				Events: s.gateway.GetDividendHistory(gctx, h.Ticker),
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	params := dividend.ParamsFromConfig(s.config, s.now(), snap.valuation.Summary.TotalValue)
	return dividend.Aggregate(assets, params), nil
}

// Simulate runs a Monte Carlo projection of the current portfolio value.
// Unlike montecarlo.Simulate, which returns an empty result for degenerate
// input, it fails with DataUnavailable when no holding has usable history and
// with ComputationDomain when the portfolio has no market value. A run whose
// path matrix would exceed montecarlo.MaxCells is rejected as InputValidation
// before any data is fetched.
func (s *Service) Simulate(ctx context.Context, positions []models.Position, opts interfaces.SimulationOptions, progress interfaces.ProgressFunc) (*models.SimulationResult, error) {
	const op = "analytics.Simulate"
	if err := s.validateOptions(op, opts); err != nil {
		return nil, err
	}

	p := montecarlo.Params{
		Years:          s.config.SimulationYears,
		Paths:          s.config.SimulationPaths,
		PeriodsPerYear: s.config.PeriodsPerYear,
		Seed:           s.config.Seed,
		KeepPaths:      opts.IncludePaths,
	}
	if opts.Years > 0 {
		p.Years = opts.Years
	}
	if opts.Paths > 0 {
		p.Paths = opts.Paths
	}
	if opts.Seed != 0 {
		p.Seed = opts.Seed
	}
	if p.Cells() > montecarlo.MaxCells {
		return nil, common.NewError(common.KindInputValidation, op,
			"%d paths over %d steps exceeds the %d cell limit; reduce paths or years", p.Paths, p.Steps(), montecarlo.MaxCells)
	}

	snap, err := s.prepare(ctx, op, positions, opts.Lookback)
	if err != nil {
		return nil, err
	}
	report(progress, fetchShare)

	res := snap.returnSeries()
	s.logExcluded(op, res.Excluded)
	if res.Portfolio.IsEmpty() {
		return nil, common.NewError(common.KindDataUnavailable, op, "no price history for any holding")
	}

	p.InitialValue = snap.valuation.Summary.TotalValue
	if p.InitialValue <= 0 {
		return nil, common.NewError(common.KindComputationDomain, op, "portfolio has no market value")
	}

	return montecarlo.Simulate(ctx, res.Portfolio, p, scaled(progress, fetchShare))
}

// Optimize samples the efficient frontier for the holdings and solves for
// the minimum-variance and maximum-Sharpe portfolios. An unconverged solve is
// reported on the result, not as an error.
func (s *Service) Optimize(ctx context.Context, positions []models.Position, opts interfaces.OptimizationOptions, progress interfaces.ProgressFunc) (*models.FrontierResult, error) {
	const op = "analytics.Optimize"
	if err := s.validateOptions(op, opts); err != nil {
		return nil, err
	}
	snap, err := s.prepare(ctx, op, positions, opts.Lookback)
	if err != nil {
		return nil, err
	}
	report(progress, fetchShare)

	res := snap.returnSeries()
	s.logExcluded(op, res.Excluded)
	if res.Aligned.Len() == 0 {
		return nil, common.NewError(common.KindDataUnavailable, op, "no price history for any holding")
	}

	p := frontier.ParamsFromConfig(s.config)
	if opts.Samples > 0 {
		p.Samples = opts.Samples
	}
	if opts.Seed != 0 {
		p.Seed = opts.Seed
	}

	result, err := frontier.Optimize(ctx, res.Aligned, res.Weights, p, scaled(progress, fetchShare))
	if err != nil {
		return nil, err
	}
	if ferr := frontier.Err(result); ferr != nil {
		s.logger.Warn().Err(ferr).Msg("Optimizer did not converge")
	}
	return result, nil
}

func report(progress interfaces.ProgressFunc, fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}

// scaled maps a component's [0, 1] progress onto [offset, 1].
func scaled(progress interfaces.ProgressFunc, offset float64) interfaces.ProgressFunc {
	if progress == nil {
		return nil
	}
	return func(f float64) {
		progress(offset + (1-offset)*f)
	}
}
