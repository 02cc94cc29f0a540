// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// "NA", "N/A" and "" all mean no value
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	if string(data) == "null" {
		*f = 0
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Exchange suffix mapping between portfolio tickers and EODHD symbols.
const (
	TokyoSuffix   = ".T"
	eodhdTokyo    = ".TSE"
	eodhdUS       = ".US"
	eodhdForex    = ".FOREX"
	dateFormat    = "2006-01-02"
	newsTimestamp = "2006-01-02T15:04:05-07:00"
)

// Client implements interfaces.MarketDataSource against EODHD.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

var _ interfaces.MarketDataSource = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig creates a client from the EODHD configuration section.
func NewClientFromConfig(cfg common.EODHDConfig, logger *common.Logger) *Client {
	return NewClient(cfg.APIKey,
		WithBaseURL(cfg.BaseURL),
		WithRateLimit(cfg.RateLimit),
		WithTimeout(cfg.GetTimeout()),
		WithLogger(logger),
	)
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// NotFound reports whether the API rejected the symbol as unknown.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Symbol maps a portfolio ticker to an EODHD symbol: a Tokyo ".T" suffix
// becomes ".TSE", a bare ticker is taken as a US listing, anything else is
// passed through.
func Symbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case strings.HasSuffix(t, TokyoSuffix):
		return strings.TrimSuffix(t, TokyoSuffix) + eodhdTokyo
	case !strings.Contains(t, "."):
		return t + eodhdUS
	default:
		return t
	}
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// eodBarResponse represents the API response for EOD data
type eodBarResponse struct {
	Date          string      `json:"date"`
	Open          flexFloat64 `json:"open"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Close         flexFloat64 `json:"close"`
	AdjustedClose flexFloat64 `json:"adjusted_close"`
	Volume        flexFloat64 `json:"volume"`
}

// GetEOD retrieves end-of-day price bars in ascending date order.
func (c *Client) GetEOD(ctx context.Context, ticker string, opts ...interfaces.EODOption) ([]models.PriceBar, error) {
	params := &interfaces.EODParams{Period: "d"}
	for _, opt := range opts {
		opt(params)
	}

	urlParams := url.Values{}
	urlParams.Set("period", params.Period)
	urlParams.Set("order", "a")
	if !params.From.IsZero() {
		urlParams.Set("from", params.From.Format(dateFormat))
	}
	if !params.To.IsZero() {
		urlParams.Set("to", params.To.Format(dateFormat))
	}

	var bars []eodBarResponse
	if err := c.get(ctx, "/eod/"+Symbol(ticker), urlParams, &bars); err != nil {
		return nil, err
	}

	out := make([]models.PriceBar, 0, len(bars))
	for _, bar := range bars {
		date, err := time.Parse(dateFormat, bar.Date)
		if err != nil {
			c.logger.Debug().Str("ticker", ticker).Str("date", bar.Date).Msg("Skipping EOD bar with bad date")
			continue
		}
		out = append(out, models.PriceBar{
			Date:     date,
			Open:     float64(bar.Open),
			High:     float64(bar.High),
			Low:      float64(bar.Low),
			Close:    float64(bar.Close),
			AdjClose: float64(bar.AdjustedClose),
			Volume:   int64(bar.Volume),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// realTimeResponse is the /real-time payload. Missing values arrive as "NA".
type realTimeResponse struct {
	Code          string      `json:"code"`
	Timestamp     flexFloat64 `json:"timestamp"`
	Close         flexFloat64 `json:"close"`
	PreviousClose flexFloat64 `json:"previousClose"`
	Change        flexFloat64 `json:"change"`
	ChangePct     flexFloat64 `json:"change_p"`
}

type fundamentalsResponse struct {
	General struct {
		Name         string `json:"Name"`
		Sector       string `json:"Sector"`
		CurrencyCode string `json:"CurrencyCode"`
	} `json:"General"`
	Highlights struct {
		DividendYield flexFloat64 `json:"DividendYield"`
	} `json:"Highlights"`
}

// GetQuote retrieves the latest price and enriches it with name, sector,
// currency and dividend yield from fundamentals when available.
func (c *Client) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	sym := Symbol(ticker)

	var rt realTimeResponse
	if err := c.get(ctx, "/real-time/"+sym, nil, &rt); err != nil {
		return nil, err
	}

	q := &models.Quote{
		Ticker:        ticker,
		Price:         float64(rt.Close),
		PreviousClose: float64(rt.PreviousClose),
	}
	if ts := int64(rt.Timestamp); ts > 0 {
		q.Timestamp = time.Unix(ts, 0).UTC()
	}

	params := url.Values{}
	params.Set("filter", "General,Highlights")
	var f fundamentalsResponse
	if err := c.get(ctx, "/fundamentals/"+sym, params, &f); err != nil {
		c.logger.Debug().Str("ticker", ticker).Err(err).Msg("Fundamentals unavailable for quote")
		return q, nil
	}
	q.Name = f.General.Name
	q.Sector = f.General.Sector
	q.Currency = f.General.CurrencyCode
	q.DividendYield = float64(f.Highlights.DividendYield)
	return q, nil
}

type dividendResponse struct {
	Date     string      `json:"date"`
	Value    flexFloat64 `json:"value"`
	Currency string      `json:"currency"`
}

// GetDividends retrieves dividend events on or after from, ascending by date.
func (c *Client) GetDividends(ctx context.Context, ticker string, from time.Time) ([]models.DividendEvent, error) {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("from", from.Format(dateFormat))
	}

	var divs []dividendResponse
	if err := c.get(ctx, "/div/"+Symbol(ticker), params, &divs); err != nil {
		return nil, err
	}

	out := make([]models.DividendEvent, 0, len(divs))
	for _, d := range divs {
		date, err := time.Parse(dateFormat, d.Date)
		if err != nil || d.Value <= 0 {
			continue
		}
		out = append(out, models.DividendEvent{Date: date, AmountPerShare: float64(d.Value), Currency: d.Currency})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// GetExchangeRate retrieves the latest rate for a pair such as "USDJPY".
func (c *Client) GetExchangeRate(ctx context.Context, pair string) (float64, error) {
	var rt realTimeResponse
	if err := c.get(ctx, "/real-time/"+strings.ToUpper(pair)+eodhdForex, nil, &rt); err != nil {
		return 0, err
	}
	rate := float64(rt.Close)
	if rate <= 0 {
		rate = float64(rt.PreviousClose)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("no rate for %s", pair)
	}
	return rate, nil
}

type newsSentiment struct {
	Polarity float64 `json:"polarity"`
	Neg      float64 `json:"neg"`
	Neu      float64 `json:"neu"`
	Pos      float64 `json:"pos"`
}

func (s newsSentiment) classify() string {
	if s.Polarity > 0.5 {
		return "positive"
	} else if s.Polarity < -0.5 {
		return "negative"
	}
	return "neutral"
}

type newsResponse struct {
	Date      string        `json:"date"`
	Title     string        `json:"title"`
	Link      string        `json:"link"`
	Source    string        `json:"source"`
	Sentiment newsSentiment `json:"sentiment"`
}

// GetNews retrieves news for a ticker
func (c *Client) GetNews(ctx context.Context, ticker string, limit int) ([]models.NewsItem, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("s", Symbol(ticker))
	params.Set("limit", strconv.Itoa(limit))

	var newsResp []newsResponse
	if err := c.get(ctx, "/news", params, &newsResp); err != nil {
		return nil, err
	}

	news := make([]models.NewsItem, len(newsResp))
	for i, item := range newsResp {
		publishedAt, _ := time.Parse(newsTimestamp, item.Date)
		news[i] = models.NewsItem{
			Title:       item.Title,
			URL:         item.Link,
			Source:      item.Source,
			PublishedAt: publishedAt,
			Sentiment:   item.Sentiment.classify(),
		}
	}
	return news, nil
}
