// Package montecarlo simulates forward portfolio values by compounding
// independent normal daily returns estimated from history.
package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/quant"
)

// rowsPerChunk is the number of paths generated by one worker step. Each
// chunk owns an independent random stream so results depend only on the seed.
const rowsPerChunk = 64

// Params configures one simulation run.
type Params struct {
	InitialValue   float64
	Years          float64
	Paths          int
	PeriodsPerYear int
	Seed           uint64 // 0 = time-seeded
	KeepPaths      bool   // retain the full path matrix in the result
}

// Steps returns the number of simulated periods.
func (p Params) Steps() int {
	periods := p.PeriodsPerYear
	if periods <= 0 {
		periods = 252
	}
	steps := int(math.Round(p.Years * float64(periods)))
	if steps < 1 {
		steps = 1
	}
	return steps
}

// MaxCells bounds the path matrix (paths times steps plus one) so a single
// request cannot allocate more than roughly 80MB of float64s.
const MaxCells = 10_000_000

// Cells returns the size of the path matrix the run allocates.
func (p Params) Cells() int {
	if p.Paths <= 0 {
		return 0
	}
	return p.Paths * (p.Steps() + 1)
}

// Simulate runs the simulation. An empty series, a non-positive initial
// value or a non-positive path count yields an empty result. The only error
// is context cancellation.
func Simulate(ctx context.Context, series models.ReturnSeries, p Params, progress interfaces.ProgressFunc) (*models.SimulationResult, error) {
	if series.IsEmpty() || p.InitialValue <= 0 || p.Paths <= 0 {
		return &models.SimulationResult{InitialValue: p.InitialValue}, nil
	}

	seed := p.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	mu := quant.Mean(series.Values)
	sigma := quant.StdDev(series.Values)
	steps := p.Steps()
	cols := steps + 1

	backing := make([]float64, p.Paths*cols)
	paths := make([][]float64, p.Paths)
	for i := range paths {
		paths[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}

	report := newReporter(progress)
	chunks := (p.Paths + rowsPerChunk - 1) / rowsPerChunk
	totalWork := chunks * 2

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seed, uint64(c)))
			lo := c * rowsPerChunk
			hi := min(lo+rowsPerChunk, p.Paths)
			for _, row := range paths[lo:hi] {
				row[0] = p.InitialValue
				for t := 1; t < cols; t++ {
					row[t] = row[t-1] * (1 + mu + sigma*rng.NormFloat64())
				}
			}
			report.step(totalWork)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &models.SimulationResult{
		InitialValue: p.InitialValue,
		NumPaths:     p.Paths,
		Steps:        steps,
		Mu:           mu,
		Sigma:        sigma,
		P10:          make([]float64, cols),
		P50:          make([]float64, cols),
		P90:          make([]float64, cols),
	}

	if err := percentilePaths(ctx, paths, res, report, totalWork, chunks); err != nil {
		return nil, err
	}

	terminal := make([]float64, p.Paths)
	for i, row := range paths {
		terminal[i] = row[steps]
	}
	res.Terminal = terminalStats(terminal, p.InitialValue)

	if p.KeepPaths {
		res.Paths = paths
	}
	report.done()
	return res, nil
}

// percentilePaths fills P10/P50/P90 column by column, splitting the columns
// across the same number of work units as path generation.
func percentilePaths(ctx context.Context, paths [][]float64, res *models.SimulationResult, report *reporter, totalWork, units int) error {
	cols := len(res.P10)
	per := (cols + units - 1) / units

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for u := 0; u < units; u++ {
		lo := u * per
		if lo >= cols {
			report.step(totalWork)
			continue
		}
		hi := min(lo+per, cols)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			column := make([]float64, len(paths))
			for t := lo; t < hi; t++ {
				for i, row := range paths {
					column[i] = row[t]
				}
				sort.Float64s(column)
				res.P10[t] = quant.PercentileSorted(column, 10)
				res.P50[t] = quant.PercentileSorted(column, 50)
				res.P90[t] = quant.PercentileSorted(column, 90)
			}
			report.step(totalWork)
			return nil
		})
	}
	return g.Wait()
}

func terminalStats(values []float64, initial float64) models.TerminalStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := float64(len(sorted))

	var above, double, belowHalf int
	for _, v := range sorted {
		if v > initial {
			above++
		}
		if v > 2*initial {
			double++
		}
		if v < 0.5*initial {
			belowHalf++
		}
	}

	mean := quant.Mean(sorted)
	return models.TerminalStats{
		Mean:              mean,
		Median:            quant.PercentileSorted(sorted, 50),
		P5:                quant.PercentileSorted(sorted, 5),
		P10:               quant.PercentileSorted(sorted, 10),
		P25:               quant.PercentileSorted(sorted, 25),
		P75:               quant.PercentileSorted(sorted, 75),
		P90:               quant.PercentileSorted(sorted, 90),
		P95:               quant.PercentileSorted(sorted, 95),
		Min:               sorted[0],
		Max:               sorted[len(sorted)-1],
		ExpectedReturnPct: (mean/initial - 1) * 100,
		ProbAboveInitial:  float64(above) / n,
		ProbDouble:        float64(double) / n,
		ProbBelowHalf:     float64(belowHalf) / n,
	}
}

// reporter serialises progress callbacks from concurrent workers.
type reporter struct {
	mu       sync.Mutex
	fn       interfaces.ProgressFunc
	finished int
}

func newReporter(fn interfaces.ProgressFunc) *reporter {
	return &reporter{fn: fn}
}

func (r *reporter) step(total int) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	// hold back the final 1.0 until the result is assembled
	r.fn(math.Min(float64(r.finished)/float64(total), 0.99))
}

func (r *reporter) done() {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn(1)
}
