package returns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func pricesFrom(start int, closes ...float64) []models.PriceBar {
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{Date: day0.AddDate(0, 0, start+i).Add(16 * time.Hour), Close: c}
	}
	return out
}

func TestDailyReturns_DropsFirstObservation(t *testing.T) {
	s := DailyReturns(pricesFrom(0, 100, 110, 99))
	require.Equal(t, 2, s.Len())
	assert.InDelta(t, 0.10, s.Values[0], 1e-12)
	assert.InDelta(t, -0.10, s.Values[1], 1e-12)
	assert.Equal(t, day0.AddDate(0, 0, 1), s.Dates[0], "dates are normalized to UTC midnight")
}

func TestDailyReturns_UnsortedAndZeroCloses(t *testing.T) {
	bars := pricesFrom(0, 100, 0, 120)
	bars[0], bars[2] = bars[2], bars[0]
	s := DailyReturns(bars)
	require.Equal(t, 1, s.Len())
	assert.InDelta(t, 0.2, s.Values[0], 1e-12)
	for _, v := range s.Values {
		assert.Greater(t, v, -1.0)
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	}
}

func TestDailyReturns_UsesAdjustedCloseAcrossSplit(t *testing.T) {
	bars := pricesFrom(0, 400, 400, 100)
	for i := range bars {
		bars[i].AdjClose = 100
	}
	s := DailyReturns(bars)
	require.Equal(t, 2, s.Len())
	assert.InDelta(t, 0, s.Values[0], 1e-12)
	assert.InDelta(t, 0, s.Values[1], 1e-12, "a 4:1 split is not a loss")
}

func TestDailyReturns_Empty(t *testing.T) {
	assert.True(t, DailyReturns(nil).IsEmpty())
	assert.True(t, DailyReturns(pricesFrom(0, 5)).IsEmpty())
}

func TestBuild_IntersectsAndWeightsByValue(t *testing.T) {
	res := Build([]AssetInput{
		{Ticker: "A", Prices: pricesFrom(0, 100, 101, 102, 103, 104), Value: 3000},
		{Ticker: "B", Prices: pricesFrom(2, 50, 55, 50, 55), Value: 1000},
		{Ticker: "C", Prices: pricesFrom(0, 10), Value: 99999},
		{Ticker: "D", Prices: nil, Value: 5},
	}, MinPoints)

	assert.ElementsMatch(t, []string{"C", "D"}, res.Excluded)
	require.Equal(t, []string{"A", "B"}, res.Aligned.Tickers)
	require.Equal(t, 2, res.Aligned.Len())
	assert.Equal(t, day0.AddDate(0, 0, 3), res.Aligned.Dates[0])

	assert.InDelta(t, 0.75, res.Weights[0], 1e-12)
	assert.InDelta(t, 0.25, res.Weights[1], 1e-12)

	a := res.Aligned.Column("A")
	b := res.Aligned.Column("B")
	for j := range res.Portfolio.Values {
		want := 0.75*a[j] + 0.25*b[j]
		assert.InDelta(t, want, res.Portfolio.Values[j], 1e-12)
	}
	assert.Nil(t, res.Aligned.Column("Z"))
}

func TestBuild_NoUsableHistoryIsEmpty(t *testing.T) {
	res := Build([]AssetInput{{Ticker: "X", Value: 10}}, MinPoints)
	assert.True(t, res.Portfolio.IsEmpty())
	assert.Equal(t, []string{"X"}, res.Excluded)
	assert.Equal(t, 0, res.Aligned.Len())
}

func TestBuild_DisjointDatesIsEmpty(t *testing.T) {
	res := Build([]AssetInput{
		{Ticker: "A", Prices: pricesFrom(0, 1, 2, 3), Value: 1},
		{Ticker: "B", Prices: pricesFrom(10, 1, 2, 3), Value: 1},
	}, MinPoints)
	assert.True(t, res.Portfolio.IsEmpty())
	assert.ElementsMatch(t, []string{"A", "B"}, res.Excluded)
}

func TestValueWeights(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0.5}, ValueWeights([]float64{0, 0}))
	assert.Equal(t, []float64{1, 0}, ValueWeights([]float64{10, -3}))
}

func TestAlignPair(t *testing.T) {
	a := models.ReturnSeries{Dates: []time.Time{day0, day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2)}, Values: []float64{1, 2, 3}}
	b := models.ReturnSeries{Dates: []time.Time{day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 2), day0.AddDate(0, 0, 3)}, Values: []float64{20, 30, 40}}
	x, y := AlignPair(a, b)
	assert.Equal(t, []float64{2, 3}, x)
	assert.Equal(t, []float64{20, 30}, y)
}
