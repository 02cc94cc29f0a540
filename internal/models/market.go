package models

import "time"

// PriceBar is one end-of-day OHLCV observation.
type PriceBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adjusted_close"`
	Volume   int64     `json:"volume"`
}

// Quote is a point-in-time snapshot for a ticker. Fetched per valuation pass, never persisted.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Name          string    `json:"name,omitempty"`
	Sector        string    `json:"sector,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	DividendYield float64   `json:"dividend_yield"` // trailing, fractional
	Timestamp     time.Time `json:"timestamp"`
}

// DividendEvent is a single per-share distribution.
type DividendEvent struct {
	Date           time.Time `json:"date"`
	AmountPerShare float64   `json:"amount_per_share"`
	Currency       string    `json:"currency,omitempty"`
}

// NewsItem is a headline for a ticker
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Sentiment   string    `json:"sentiment"` // positive, negative, neutral
}

// TickerInfo is an entry in the curated ticker search list.
type TickerInfo struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// CommonTickers is the curated search list offered to clients.
var CommonTickers = []TickerInfo{
	{Ticker: "AAPL", Name: "Apple", Currency: "USD"},
	{Ticker: "MSFT", Name: "Microsoft", Currency: "USD"},
	{Ticker: "GOOGL", Name: "Alphabet", Currency: "USD"},
	{Ticker: "AMZN", Name: "Amazon", Currency: "USD"},
	{Ticker: "NVDA", Name: "NVIDIA", Currency: "USD"},
	{Ticker: "META", Name: "Meta Platforms", Currency: "USD"},
	{Ticker: "TSLA", Name: "Tesla", Currency: "USD"},
	{Ticker: "VOO", Name: "Vanguard S&P 500 ETF", Currency: "USD"},
	{Ticker: "7203.T", Name: "Toyota Motor", Currency: "JPY"},
	{Ticker: "6758.T", Name: "Sony Group", Currency: "JPY"},
	{Ticker: "9984.T", Name: "SoftBank Group", Currency: "JPY"},
	{Ticker: "8306.T", Name: "Mitsubishi UFJ Financial", Currency: "JPY"},
	{Ticker: "9432.T", Name: "NTT", Currency: "JPY"},
	{Ticker: "6861.T", Name: "Keyence", Currency: "JPY"},
}

// TrendType classifies the direction of a price series.
type TrendType string

const (
	TrendBullish TrendType = "bullish"
	TrendBearish TrendType = "bearish"
	TrendNeutral TrendType = "neutral"
)

// TechnicalSignals summarizes a ticker's recent price action.
type TechnicalSignals struct {
	Ticker            string    `json:"ticker"`
	AsOf              time.Time `json:"as_of"`
	Observations      int       `json:"observations"`
	Price             float64   `json:"price"`
	SMA20             float64   `json:"sma_20"`
	SMA50             float64   `json:"sma_50"`
	SMA200            float64   `json:"sma_200"`
	DistanceSMA200Pct float64   `json:"distance_sma_200_pct"`
	RSI14             float64   `json:"rsi_14"`
	RSIState          string    `json:"rsi_state"` // overbought, oversold, neutral
	High52Week        float64   `json:"high_52_week"`
	Low52Week         float64   `json:"low_52_week"`
	Crossover         string    `json:"crossover"` // golden_cross, death_cross, none
	Trend             TrendType `json:"trend"`
	TrendDescription  string    `json:"trend_description"`
}
