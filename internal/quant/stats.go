// Package quant holds the small numerical helpers shared by the analytics
// services. Sample statistics use the n-1 denominator throughout.
package quant

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// StdDev returns the sample standard deviation, or 0 with fewer than two values.
func StdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

// Variance returns the sample variance, or 0 with fewer than two values.
func Variance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.Variance(x, nil)
}

// Covariance returns the sample covariance of two equal-length slices.
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation returns the Pearson correlation, or 0 when either side is constant.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	if StdDev(x) == 0 || StdDev(y) == 0 {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Percentile returns the p-th percentile (0..100) using linear interpolation
// between closest ranks. x is not modified.
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	return PercentileSorted(sorted, p)
}

// PercentileSorted is Percentile for an already ascending slice.
func PercentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	h := float64(n-1) * p / 100
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// SafeDiv returns num/den, or 0 when den is zero or the result is not finite.
func SafeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// WealthIndex returns the cumulative product of (1+r) for each return.
func WealthIndex(returns []float64) []float64 {
	idx := make([]float64, len(returns))
	w := 1.0
	for i, r := range returns {
		w *= 1 + r
		idx[i] = w
	}
	return idx
}

// TotalReturn compounds the returns into a single fractional return.
func TotalReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	idx := WealthIndex(returns)
	return idx[len(idx)-1] - 1
}

// Normalize scales w in place so it sums to 1. A zero or negative sum leaves
// equal weights.
func Normalize(w []float64) {
	if len(w) == 0 {
		return
	}
	sum := floats.Sum(w)
	if sum <= 0 || math.IsNaN(sum) {
		for i := range w {
			w[i] = 1 / float64(len(w))
		}
		return
	}
	floats.Scale(1/sum, w)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
