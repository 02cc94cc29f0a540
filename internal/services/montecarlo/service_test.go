package montecarlo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

func history() models.ReturnSeries {
	base := []float64{0.012, -0.008, 0.004, -0.015, 0.02, 0.001, -0.003, 0.007, -0.011, 0.009}
	s := models.ReturnSeries{}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		s.Dates = append(s.Dates, day.AddDate(0, 0, i))
		s.Values = append(s.Values, base[i%len(base)])
	}
	return s
}

func TestSimulate_PathInvariants(t *testing.T) {
	p := Params{InitialValue: 1_000_000, Years: 1, Paths: 300, PeriodsPerYear: 252, Seed: 42, KeepPaths: true}
	res, err := Simulate(context.Background(), history(), p, nil)
	require.NoError(t, err)

	require.Equal(t, 300, res.NumPaths)
	require.Equal(t, 252, res.Steps)
	require.Len(t, res.Paths, 300)
	for i, row := range res.Paths {
		require.Len(t, row, 253)
		if row[0] != p.InitialValue {
			t.Fatalf("path %d starts at %v, want exactly %v", i, row[0], p.InitialValue)
		}
	}
	for tt := range res.P10 {
		if !(res.P10[tt] <= res.P50[tt] && res.P50[tt] <= res.P90[tt]) {
			t.Fatalf("percentile ordering broken at t=%d: %v %v %v", tt, res.P10[tt], res.P50[tt], res.P90[tt])
		}
	}
	assert.Equal(t, p.InitialValue, res.P10[0])
	assert.Equal(t, p.InitialValue, res.P90[0])

	ts := res.Terminal
	assert.LessOrEqual(t, ts.Min, ts.P5)
	assert.LessOrEqual(t, ts.P5, ts.P25)
	assert.LessOrEqual(t, ts.P25, ts.Median)
	assert.LessOrEqual(t, ts.Median, ts.P75)
	assert.LessOrEqual(t, ts.P95, ts.Max)
	assert.InDelta(t, res.P50[252], ts.Median, 1e-6)
	for _, prob := range []float64{ts.ProbAboveInitial, ts.ProbDouble, ts.ProbBelowHalf} {
		assert.GreaterOrEqual(t, prob, 0.0)
		assert.LessOrEqual(t, prob, 1.0)
	}
}

func TestSimulate_SeedIsDeterministic(t *testing.T) {
	p := Params{InitialValue: 100, Years: 0.5, Paths: 200, PeriodsPerYear: 252, Seed: 7, KeepPaths: true}
	a, err := Simulate(context.Background(), history(), p, nil)
	require.NoError(t, err)
	b, err := Simulate(context.Background(), history(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Paths, b.Paths)
	assert.Equal(t, a.Terminal, b.Terminal)

	p.Seed = 8
	c, err := Simulate(context.Background(), history(), p, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Terminal.Mean, c.Terminal.Mean)
}

func TestSimulate_DriftAndVolatilityFromHistory(t *testing.T) {
	res, err := Simulate(context.Background(), history(), Params{InitialValue: 1, Years: 1, Paths: 2, Seed: 1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0016, res.Mu, 1e-12)
	assert.Greater(t, res.Sigma, 0.0)
	assert.Nil(t, res.Paths, "paths are dropped unless requested")
}

func TestSimulate_ZeroVolatilityIsDeterministicGrowth(t *testing.T) {
	s := models.ReturnSeries{Values: []float64{0.01, 0.01, 0.01}, Dates: make([]time.Time, 3)}
	res, err := Simulate(context.Background(), s, Params{InitialValue: 100, Years: 10.0 / 252, Paths: 5, PeriodsPerYear: 252, Seed: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Steps)
	want := 100.0
	for i := 0; i < 10; i++ {
		want *= 1.01
	}
	assert.InDelta(t, want, res.Terminal.Mean, 1e-9)
	assert.Equal(t, 1.0, res.Terminal.ProbAboveInitial)
}

func TestSimulate_DegenerateInputsReturnEmpty(t *testing.T) {
	tests := []struct {
		name   string
		series models.ReturnSeries
		p      Params
	}{
		{"empty series", models.ReturnSeries{}, Params{InitialValue: 100, Years: 1, Paths: 10}},
		{"zero initial", history(), Params{InitialValue: 0, Years: 1, Paths: 10}},
		{"negative initial", history(), Params{InitialValue: -5, Years: 1, Paths: 10}},
		{"no paths", history(), Params{InitialValue: 100, Years: 1, Paths: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Simulate(context.Background(), tt.series, tt.p, nil)
			require.NoError(t, err)
			assert.True(t, res.IsEmpty())
		})
	}
}

func TestSimulate_ReportsProgressToCompletion(t *testing.T) {
	var mu sync.Mutex
	var seen []float64
	progress := func(f float64) {
		mu.Lock()
		seen = append(seen, f)
		mu.Unlock()
	}
	_, err := Simulate(context.Background(), history(), Params{InitialValue: 100, Years: 1, Paths: 500, Seed: 1}, progress)
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 1.0, seen[len(seen)-1])
}

func TestSimulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulate(ctx, history(), Params{InitialValue: 100, Years: 1, Paths: 1000, Seed: 1}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParams_Steps(t *testing.T) {
	assert.Equal(t, 252, Params{Years: 1}.Steps())
	assert.Equal(t, 504, Params{Years: 2, PeriodsPerYear: 252}.Steps())
	assert.Equal(t, 1, Params{Years: 0}.Steps())
}

func TestParams_Cells(t *testing.T) {
	assert.Equal(t, 0, Params{Years: 1}.Cells())
	assert.Equal(t, 253000, Params{Years: 1, Paths: 1000}.Cells())
	assert.LessOrEqual(t, Params{Years: 1, Paths: 20000}.Cells(), MaxCells)
	assert.Greater(t, Params{Years: 50, Paths: 20000}.Cells(), MaxCells)
}
