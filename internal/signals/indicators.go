// Package signals provides technical indicator calculations over
// ascending end-of-day price bars.
package signals

import (
	"math"

	"github.com/bobmcallan/folio/internal/models"
)

// tradingYear is the number of bars treated as 52 weeks.
const tradingYear = 252

// closeOf prefers the adjusted close so splits do not read as crashes.
func closeOf(b models.PriceBar) float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

// SMA calculates the simple moving average of the last period closes.
func SMA(bars []models.PriceBar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}

	sum := 0.0
	for _, b := range bars[len(bars)-period:] {
		sum += closeOf(b)
	}
	return sum / float64(period)
}

// RSI calculates the Relative Strength Index over the last period changes.
func RSI(bars []models.PriceBar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 50 // Neutral default
	}

	var gains, losses float64
	window := bars[len(bars)-period-1:]
	for i := 1; i < len(window); i++ {
		change := closeOf(window[i]) - closeOf(window[i-1])
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if gains == 0 && losses == 0 {
		return 50
	}
	if losses == 0 {
		return 100
	}

	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - (100 / (1 + rs))
}

// High52Week returns the highest close in the last 252 bars.
func High52Week(bars []models.PriceBar) float64 {
	start := max(len(bars)-tradingYear, 0)
	high := 0.0
	for _, b := range bars[start:] {
		high = math.Max(high, closeOf(b))
	}
	return high
}

// Low52Week returns the lowest close in the last 252 bars.
func Low52Week(bars []models.PriceBar) float64 {
	start := max(len(bars)-tradingYear, 0)
	low := math.MaxFloat64
	for _, b := range bars[start:] {
		low = math.Min(low, closeOf(b))
	}
	if low == math.MaxFloat64 {
		return 0
	}
	return low
}

// DetectCrossover compares the short and long SMAs on the last two bars.
// Returns "golden_cross", "death_cross", or "none".
func DetectCrossover(bars []models.PriceBar, shortPeriod, longPeriod int) string {
	if len(bars) < longPeriod+1 {
		return "none"
	}

	shortSMA := SMA(bars, shortPeriod)
	longSMA := SMA(bars, longPeriod)

	prev := bars[:len(bars)-1]
	prevShortSMA := SMA(prev, shortPeriod)
	prevLongSMA := SMA(prev, longPeriod)

	// Golden cross: short crosses above long
	if prevShortSMA <= prevLongSMA && shortSMA > longSMA {
		return "golden_cross"
	}

	// Death cross: short crosses below long
	if prevShortSMA >= prevLongSMA && shortSMA < longSMA {
		return "death_cross"
	}

	return "none"
}

// ClassifyRSI classifies RSI value
func ClassifyRSI(rsi float64) string {
	if rsi >= 70 {
		return "overbought"
	}
	if rsi <= 30 {
		return "oversold"
	}
	return "neutral"
}

// DistanceToSMA calculates percentage distance from current price to SMA
func DistanceToSMA(currentPrice, sma float64) float64 {
	if sma == 0 {
		return 0
	}
	return ((currentPrice - sma) / sma) * 100
}

// DetermineTrend classifies the overall trend. Without a 200-day average
// the trend is neutral.
func DetermineTrend(currentPrice, sma20, sma50, sma200 float64) models.TrendType {
	if sma200 == 0 || sma50 == 0 {
		return models.TrendNeutral
	}

	// BULLISH: Price > SMA200 AND SMA20 > SMA50
	if currentPrice > sma200 && sma20 > sma50 {
		return models.TrendBullish
	}

	// BEARISH: Price < SMA200 AND SMA20 < SMA50
	if currentPrice < sma200 && sma20 < sma50 {
		return models.TrendBearish
	}

	return models.TrendNeutral
}

// TrendDescription returns a human-readable trend description
func TrendDescription(trend models.TrendType, crossover string) string {
	switch trend {
	case models.TrendBullish:
		desc := "Bullish trend: price above 200-day SMA with positive momentum"
		if crossover == "golden_cross" {
			desc += " (recent golden cross)"
		}
		return desc
	case models.TrendBearish:
		desc := "Bearish trend: price below 200-day SMA with negative momentum"
		if crossover == "death_cross" {
			desc += " (recent death cross)"
		}
		return desc
	default:
		return "Neutral trend: mixed signals, no clear direction"
	}
}

// Compute builds the technical snapshot for one ticker. An empty history
// yields a snapshot with only the ticker and a neutral trend.
func Compute(ticker string, bars []models.PriceBar) models.TechnicalSignals {
	s := models.TechnicalSignals{
		Ticker:       ticker,
		Observations: len(bars),
		RSI14:        50,
		RSIState:     "neutral",
		Crossover:    "none",
		Trend:        models.TrendNeutral,
	}
	if len(bars) == 0 {
		s.TrendDescription = TrendDescription(s.Trend, s.Crossover)
		return s
	}

	last := bars[len(bars)-1]
	s.AsOf = last.Date
	s.Price = closeOf(last)
	s.SMA20 = SMA(bars, 20)
	s.SMA50 = SMA(bars, 50)
	s.SMA200 = SMA(bars, 200)
	s.DistanceSMA200Pct = DistanceToSMA(s.Price, s.SMA200)
	s.RSI14 = RSI(bars, 14)
	s.RSIState = ClassifyRSI(s.RSI14)
	s.High52Week = High52Week(bars)
	s.Low52Week = Low52Week(bars)
	s.Crossover = DetectCrossover(bars, 20, 50)
	s.Trend = DetermineTrend(s.Price, s.SMA20, s.SMA50, s.SMA200)
	s.TrendDescription = TrendDescription(s.Trend, s.Crossover)
	return s
}
