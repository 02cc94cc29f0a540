// Package frontier implements long-only mean-variance optimization: a random
// cloud of simplex portfolios plus solved minimum-variance and maximum-Sharpe
// portfolios.
package frontier

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/quant"
	"github.com/bobmcallan/folio/internal/services/returns"
)

const (
	// weightFloor zeroes solver weights that are numerically absent.
	weightFloor = 1e-8

	// cloudProgressShare is the fraction of progress attributed to sampling.
	cloudProgressShare = 0.8

	maxIterations = 1000
)

// Solver methods reported in OptimizedPortfolio.Method.
const (
	MethodBFGS       = "bfgs"
	MethodNelderMead = "nelder-mead"
)

// Params configures an optimization run.
type Params struct {
	PeriodsPerYear  int
	RiskFreeRate    float64
	Samples         int
	Seed            uint64 // 0 = time-seeded
	MinObservations int
}

// ParamsFromConfig builds Params from the analytics configuration.
func ParamsFromConfig(cfg common.AnalyticsConfig) Params {
	return Params{
		PeriodsPerYear:  cfg.PeriodsPerYear,
		RiskFreeRate:    cfg.RiskFreeRate,
		Samples:         cfg.CloudSamples,
		Seed:            cfg.Seed,
		MinObservations: cfg.MinObservations,
	}
}

func (p Params) withDefaults() Params {
	if p.PeriodsPerYear <= 0 {
		p.PeriodsPerYear = 252
	}
	if p.MinObservations < 2 {
		p.MinObservations = 2
	}
	if p.Samples < 0 {
		p.Samples = 0
	}
	return p
}

// model holds annualised expected returns and covariance.
type model struct {
	mu    []float64
	sigma *mat.SymDense
	rf    float64
}

func newModel(a *returns.Aligned, periods int, rf float64) *model {
	n, k := a.Len(), len(a.Tickers)
	data := mat.NewDense(n, k, nil)
	mu := make([]float64, k)
	for j := 0; j < k; j++ {
		data.SetCol(j, a.Returns[j])
		mu[j] = quant.Mean(a.Returns[j]) * float64(periods)
	}
	sigma := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(sigma, data, nil)
	sigma.ScaleSym(float64(periods), sigma)
	return &model{mu: mu, sigma: sigma, rf: rf}
}

func (m *model) variance(w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return math.Max(mat.Inner(v, m.sigma, v), 0)
}

// evaluate returns w with its annualised return, volatility and Sharpe ratio.
// A zero-volatility portfolio has Sharpe 0.
func (m *model) evaluate(w []float64) models.FrontierPortfolio {
	ret := floats.Dot(w, m.mu)
	vol := math.Sqrt(m.variance(w))
	sharpe := 0.0
	if vol > 0 {
		sharpe = (ret - m.rf) / vol
	}
	return models.FrontierPortfolio{
		Weights:        append([]float64(nil), w...),
		ExpectedReturn: ret,
		Volatility:     vol,
		Sharpe:         sharpe,
	}
}

// Optimize runs the cloud sampling and both solvers over the aligned asset
// returns. current holds the actual portfolio weights parallel to a.Tickers;
// a missing or unusable vector is treated as equal weight.
//
// Fewer than two assets is an input validation error and too few common
// observations is insufficient data. A solver that does not converge is not
// an error here: the result is flagged and FrontierResult.Err reports it.
func Optimize(ctx context.Context, a *returns.Aligned, current []float64, p Params, progress interfaces.ProgressFunc) (*models.FrontierResult, error) {
	const op = "frontier.Optimize"
	p = p.withDefaults()

	if a == nil || len(a.Tickers) < 2 {
		n := 0
		if a != nil {
			n = len(a.Tickers)
		}
		return nil, common.NewError(common.KindInputValidation, op, "optimization needs at least 2 assets, have %d", n)
	}
	if a.Len() < p.MinObservations {
		return nil, common.NewError(common.KindInsufficientData, op, "need %d common observations, have %d", p.MinObservations, a.Len())
	}
	if progress == nil {
		progress = func(float64) {}
	}

	m := newModel(a, p.PeriodsPerYear, p.RiskFreeRate)
	k := len(a.Tickers)

	res := &models.FrontierResult{
		Tickers:      append([]string(nil), a.Tickers...),
		Observations: a.Len(),
	}

	cw := make([]float64, k)
	if len(current) == k {
		copy(cw, current)
	}
	for i, v := range cw {
		if !quant.IsFinite(v) || v < 0 {
			cw[i] = 0
		}
	}
	quant.Normalize(cw)
	res.Current = m.evaluate(cw)

	cloud, err := sampleCloud(ctx, m, k, p, progress)
	if err != nil {
		return nil, err
	}
	res.Cloud = cloud

	res.MinVariance, err = solve(ctx, k, func(w []float64) (float64, []float64) {
		// f = wᵀΣw, ∇f = 2Σw
		g := mat.NewVecDense(k, nil)
		g.MulVec(m.sigma, mat.NewVecDense(k, w))
		grad := make([]float64, k)
		for i := range grad {
			grad[i] = 2 * g.AtVec(i)
		}
		return m.variance(w), grad
	}, m)
	if err != nil {
		return nil, err
	}
	progress(0.9)

	res.MaxSharpe, err = solve(ctx, k, func(w []float64) (float64, []float64) {
		// f = -(wᵀμ - rf)/σ, ∇f = -μ/σ + (wᵀμ - rf)Σw/σ³
		grad := make([]float64, k)
		sd := math.Sqrt(m.variance(w))
		if sd == 0 {
			return 0, grad
		}
		excess := floats.Dot(w, m.mu) - m.rf
		sw := mat.NewVecDense(k, nil)
		sw.MulVec(m.sigma, mat.NewVecDense(k, w))
		sd3 := sd * sd * sd
		for i := range grad {
			grad[i] = -m.mu[i]/sd + excess*sw.AtVec(i)/sd3
		}
		return -excess / sd, grad
	}, m)
	if err != nil {
		return nil, err
	}
	progress(1)
	return res, nil
}

// Err returns an OptimizationFailure error naming each unconverged solve, or nil.
func Err(r *models.FrontierResult) error {
	if r == nil {
		return nil
	}
	var failed []string
	if !r.MinVariance.Converged {
		failed = append(failed, "min-variance ("+r.MinVariance.Status+")")
	}
	if !r.MaxSharpe.Converged {
		failed = append(failed, "max-sharpe ("+r.MaxSharpe.Status+")")
	}
	if len(failed) == 0 {
		return nil
	}
	return common.NewError(common.KindOptimizationFailure, "frontier.Optimize", "solver did not converge: %v", failed)
}

func sampleCloud(ctx context.Context, m *model, k int, p Params, progress interfaces.ProgressFunc) ([]models.FrontierPortfolio, error) {
	if p.Samples == 0 {
		return nil, nil
	}
	seed := p.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, uint64(k)))

	cloud := make([]models.FrontierPortfolio, p.Samples)
	w := make([]float64, k)
	step := max(p.Samples/20, 1)
	for s := range cloud {
		if s%step == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			progress(cloudProgressShare * float64(s) / float64(p.Samples))
		}
		for i := range w {
			w[i] = rng.Float64()
		}
		quant.Normalize(w)
		cloud[s] = m.evaluate(w)
	}
	progress(cloudProgressShare)
	return cloud, nil
}

// objective evaluates a function of the weights and its gradient in weight space.
type objective func(w []float64) (float64, []float64)

// softmax maps unconstrained logits onto the simplex, so the long-only and
// fully-invested constraints hold for every point the solver visits.
func softmax(dst, z []float64) {
	hi := floats.Max(z)
	for i, v := range z {
		dst[i] = math.Exp(v - hi)
	}
	floats.Scale(1/floats.Sum(dst), dst)
}

// problem lifts a weight-space objective into logit space. The chain rule
// through the softmax Jacobian gives ∂f/∂z = w ⊙ (g − wᵀg).
func problem(k int, f objective) optimize.Problem {
	w := make([]float64, k)
	return optimize.Problem{
		Func: func(z []float64) float64 {
			softmax(w, z)
			v, _ := f(w)
			return v
		},
		Grad: func(grad, z []float64) {
			softmax(w, z)
			_, g := f(w)
			wg := floats.Dot(w, g)
			for i := range grad {
				grad[i] = w[i] * (g[i] - wg)
			}
		},
	}
}

// converged reports whether a gonum termination status is an accepted optimum.
func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

// ctxConverger stops the solver once the context is done.
type ctxConverger struct {
	ctx   context.Context
	inner optimize.Converger
}

func (c *ctxConverger) Init(dim int) { c.inner.Init(dim) }

func (c *ctxConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return optimize.RuntimeLimit
	}
	return c.inner.Converged(loc)
}

func settings(ctx context.Context) *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: maxIterations,
		Converger: &ctxConverger{
			ctx:   ctx,
			inner: &optimize.FunctionConverge{Absolute: 1e-12, Iterations: 50},
		},
	}
}

type attempt struct {
	method string
	result *optimize.Result
	err    error
}

// solve minimises f from equal weights with BFGS, falling back to Nelder-Mead.
// When neither converges the better of the two points is returned unconverged.
func solve(ctx context.Context, k int, f objective, m *model) (models.OptimizedPortfolio, error) {
	prob := problem(k, f)
	run := func(method string, opt optimize.Method) attempt {
		r, err := optimize.Minimize(prob, make([]float64, k), settings(ctx), opt)
		return attempt{method: method, result: r, err: err}
	}

	attempts := []attempt{run(MethodBFGS, &optimize.BFGS{})}
	if err := ctx.Err(); err != nil {
		return models.OptimizedPortfolio{}, err
	}
	best := attempts[0]
	if best.err != nil || best.result == nil || !converged(best.result.Status) {
		nm := run(MethodNelderMead, &optimize.NelderMead{})
		if err := ctx.Err(); err != nil {
			return models.OptimizedPortfolio{}, err
		}
		attempts = append(attempts, nm)
		best = pick(attempts)
	}

	if best.result == nil {
		w := make([]float64, k)
		quant.Normalize(w)
		status := "no result"
		if best.err != nil {
			status = best.err.Error()
		}
		return models.OptimizedPortfolio{FrontierPortfolio: m.evaluate(w), Method: best.method, Status: status}, nil
	}

	w := make([]float64, k)
	softmax(w, best.result.X)
	clean(w)
	return models.OptimizedPortfolio{
		FrontierPortfolio: m.evaluate(w),
		Converged:         best.err == nil && converged(best.result.Status),
		Method:            best.method,
		Status:            best.result.Status.String(),
	}, nil
}

// pick prefers a converged attempt, then the lowest objective value.
func pick(attempts []attempt) attempt {
	var best *attempt
	for i := range attempts {
		a := &attempts[i]
		if a.result == nil {
			continue
		}
		if best == nil {
			best = a
			continue
		}
		ac, bc := a.err == nil && converged(a.result.Status), best.err == nil && converged(best.result.Status)
		if ac != bc {
			if ac {
				best = a
			}
			continue
		}
		if a.result.F < best.result.F {
			best = a
		}
	}
	if best == nil {
		return attempts[len(attempts)-1]
	}
	return *best
}

// clean zeroes weights below weightFloor and renormalises.
func clean(w []float64) {
	for i, v := range w {
		if v < weightFloor {
			w[i] = 0
		}
	}
	quant.Normalize(w)
}
