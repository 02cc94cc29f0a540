package interfaces

import (
	"context"

	"github.com/bobmcallan/folio/internal/models"
)

// ProgressFunc receives completion fractions in [0, 1].
type ProgressFunc func(fraction float64)

// TaskFunc is a cancellable unit of background work.
type TaskFunc func(ctx context.Context, progress ProgressFunc) (interface{}, error)

// TaskManager runs at most one task per kind. Submitting a new task of a kind
// supersedes any earlier one that has not finished.
type TaskManager interface {
	Submit(kind string, fn TaskFunc) *models.Task
	Get(id string) (*models.Task, bool)
	Latest(kind string) (*models.Task, bool)
	Cancel(id string) bool
}

// RiskOptions configures a risk report
type RiskOptions struct {
	Lookback  string `json:"lookback,omitempty"`
	Benchmark string `json:"benchmark,omitempty"`
}

// SimulationOptions configures a Monte Carlo run; zero values use configured defaults
type SimulationOptions struct {
	Lookback     string  `json:"lookback,omitempty"`
	Years        float64 `json:"years,omitempty" validate:"omitempty,gt=0,lte=50"`
	Paths        int     `json:"paths,omitempty" validate:"omitempty,gt=0,lte=20000"`
	Seed         uint64  `json:"seed,omitempty"`
	IncludePaths bool    `json:"include_paths,omitempty"`
}

// OptimizationOptions configures a mean-variance run; zero values use configured defaults
type OptimizationOptions struct {
	Lookback string `json:"lookback,omitempty"`
	Samples  int    `json:"samples,omitempty" validate:"omitempty,gte=0,lte=100000"`
	Seed     uint64 `json:"seed,omitempty"`
}

// AnalyticsService composes the gateway and the analytics components.
type AnalyticsService interface {
	Value(ctx context.Context, positions []models.Position) (*models.Valuation, error)
	Risk(ctx context.Context, positions []models.Position, opts RiskOptions) (*models.RiskReport, error)
	Correlation(ctx context.Context, positions []models.Position, lookback string) (*models.CorrelationMatrix, error)
	Rebalance(ctx context.Context, positions []models.Position, targets map[string]float64) (*models.RebalancePlan, error)
	Dividends(ctx context.Context, positions []models.Position) (*models.DividendReport, error)
	Simulate(ctx context.Context, positions []models.Position, opts SimulationOptions, progress ProgressFunc) (*models.SimulationResult, error)
	Optimize(ctx context.Context, positions []models.Position, opts OptimizationOptions, progress ProgressFunc) (*models.FrontierResult, error)
}
