// Package returns turns price histories into aligned daily return series and
// blends them into a value-weighted portfolio series.
package returns

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/bobmcallan/folio/internal/models"
)

// MinPoints is the fewest return observations an asset needs to take part
// in alignment.
const MinPoints = 2

// AssetInput is one asset's price history and current reporting-currency value.
type AssetInput struct {
	Ticker string
	Prices []models.PriceBar
	Value  float64
}

// Aligned holds per-asset return columns on a common ascending date set.
// Returns[i] belongs to Tickers[i] and has len(Dates) values.
type Aligned struct {
	Tickers []string
	Dates   []time.Time
	Returns [][]float64
}

// Len returns the number of common observations.
func (a *Aligned) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Dates)
}

// Column returns the series for ticker, or nil.
func (a *Aligned) Column(ticker string) []float64 {
	for i, t := range a.Tickers {
		if t == ticker {
			return a.Returns[i]
		}
	}
	return nil
}

// Result is the output of Build.
type Result struct {
	Portfolio models.ReturnSeries
	Aligned   *Aligned
	Weights   []float64 // parallel to Aligned.Tickers
	Excluded  []string
}

// day truncates t to its UTC calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// adjustedClose prefers the split and dividend adjusted close, falling back to
// the raw close when the source did not supply one.
func adjustedClose(b models.PriceBar) float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

// DailyReturns converts adjusted closes into fractional changes. The first bar
// has no return and is dropped, as is any bar with a non-positive price.
func DailyReturns(bars []models.PriceBar) models.ReturnSeries {
	sorted := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if adjustedClose(b) > 0 {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := models.ReturnSeries{}
	for i := 1; i < len(sorted); i++ {
		prev := adjustedClose(sorted[i-1])
		cur := adjustedClose(sorted[i])
		d := day(sorted[i].Date)
		if n := len(out.Dates); n > 0 && out.Dates[n-1].Equal(d) {
			continue
		}
		out.Dates = append(out.Dates, d)
		out.Values = append(out.Values, cur/prev-1)
	}
	return out
}

// AlignSeries intersects the series on their common dates. Series with fewer
// than minPoints observations are excluded rather than shrinking the window
// for everyone else.
func AlignSeries(tickers []string, series []models.ReturnSeries, minPoints int) (*Aligned, []string) {
	if minPoints < 1 {
		minPoints = 1
	}

	var excluded []string
	var keep []int
	for i := range tickers {
		if series[i].Len() < minPoints {
			excluded = append(excluded, tickers[i])
			continue
		}
		keep = append(keep, i)
	}

	aligned := &Aligned{}
	if len(keep) == 0 {
		return aligned, excluded
	}

	counts := make(map[time.Time]int)
	for _, i := range keep {
		for _, d := range series[i].Dates {
			counts[day(d)]++
		}
	}
	var common []time.Time
	for d, c := range counts {
		if c == len(keep) {
			common = append(common, d)
		}
	}
	sort.Slice(common, func(a, b int) bool { return common[a].Before(common[b]) })

	if len(common) == 0 {
		return aligned, excluded
	}

	pos := make(map[time.Time]int, len(common))
	for j, d := range common {
		pos[d] = j
	}

	aligned.Dates = common
	for _, i := range keep {
		col := make([]float64, len(common))
		for k, d := range series[i].Dates {
			if j, ok := pos[day(d)]; ok {
				col[j] = series[i].Values[k]
			}
		}
		aligned.Tickers = append(aligned.Tickers, tickers[i])
		aligned.Returns = append(aligned.Returns, col)
	}
	return aligned, excluded
}

// Blend forms the weighted sum of the aligned columns on each date.
func Blend(a *Aligned, weights []float64) models.ReturnSeries {
	out := models.ReturnSeries{}
	if a.Len() == 0 || len(weights) != len(a.Returns) {
		return out
	}
	row := make([]float64, len(a.Returns))
	out.Dates = append([]time.Time(nil), a.Dates...)
	out.Values = make([]float64, len(a.Dates))
	for j := range a.Dates {
		for i := range a.Returns {
			row[i] = a.Returns[i][j]
		}
		out.Values[j] = floats.Dot(weights, row)
	}
	return out
}

// ValueWeights returns value_i / sum(values). Non-positive values get zero
// weight; if nothing has positive value the weights are equal.
func ValueWeights(values []float64) []float64 {
	w := make([]float64, len(values))
	total := 0.0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	for i, v := range values {
		switch {
		case total <= 0:
			w[i] = 1 / float64(len(values))
		case v > 0:
			w[i] = v / total
		}
	}
	return w
}

// Build converts each asset's prices to returns, aligns them and blends them
// by current value. The portfolio series is empty, not an error, when no
// asset has usable history.
func Build(assets []AssetInput, minPoints int) *Result {
	tickers := make([]string, len(assets))
	series := make([]models.ReturnSeries, len(assets))
	values := make(map[string]float64, len(assets))
	for i, a := range assets {
		tickers[i] = a.Ticker
		series[i] = DailyReturns(a.Prices)
		values[a.Ticker] = a.Value
	}

	aligned, excluded := AlignSeries(tickers, series, minPoints)
	res := &Result{Aligned: aligned, Excluded: excluded}
	if aligned.Len() == 0 {
		// nothing overlaps, so no asset is usable
		res.Excluded = append([]string(nil), tickers...)
		return res
	}

	vals := make([]float64, len(aligned.Tickers))
	for i, t := range aligned.Tickers {
		vals[i] = values[t]
	}
	res.Weights = ValueWeights(vals)
	res.Portfolio = Blend(aligned, res.Weights)
	return res
}

// AlignPair intersects two series on common dates and returns the paired values.
func AlignPair(a, b models.ReturnSeries) ([]float64, []float64) {
	idx := make(map[time.Time]int, b.Len())
	for i, d := range b.Dates {
		idx[day(d)] = i
	}
	var x, y []float64
	for i, d := range a.Dates {
		if j, ok := idx[day(d)]; ok {
			x = append(x, a.Values[i])
			y = append(y, b.Values[j])
		}
	}
	return x, y
}
