package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/portfolio"
)

// fakeSource serves deterministic market data for AAPL, 7203.T and SPY.
type fakeSource struct{}

var fakeQuotes = map[string]models.Quote{
	"AAPL":   {Ticker: "AAPL", Name: "Apple", Currency: "USD", Price: 150, PreviousClose: 148},
	"7203.T": {Ticker: "7203.T", Name: "Toyota Motor", Currency: "JPY", Price: 2500, PreviousClose: 2450},
	"SPY":    {Ticker: "SPY", Currency: "USD", Price: 500, PreviousClose: 499},
}

func (fakeSource) GetEOD(ctx context.Context, ticker string, opts ...interfaces.EODOption) ([]models.PriceBar, error) {
	q, ok := fakeQuotes[ticker]
	if !ok {
		return []models.PriceBar{}, nil
	}
	p := &interfaces.EODParams{}
	for _, opt := range opts {
		opt(p)
	}
	to := p.To
	if to.IsZero() {
		to = time.Now()
	}
	from := p.From
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}

	phase := float64(len(ticker))
	var bars []models.PriceBar
	price := q.Price * 0.8
	i := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		price *= 1 + 0.001 + 0.01*math.Sin(float64(i)*0.7+phase)
		bars = append(bars, models.PriceBar{Date: d, Close: price, AdjClose: price})
		i++
	}
	return bars, nil
}

func (fakeSource) GetQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	q, ok := fakeQuotes[ticker]
	if !ok {
		return nil, errors.New("unknown ticker")
	}
	q.Timestamp = time.Now()
	return &q, nil
}

func (fakeSource) GetDividends(ctx context.Context, ticker string, from time.Time) ([]models.DividendEvent, error) {
	if ticker != "AAPL" {
		return nil, nil
	}
	var events []models.DividendEvent
	for d := from.AddDate(0, 1, 0); d.Before(time.Now()); d = d.AddDate(0, 3, 0) {
		events = append(events, models.DividendEvent{Date: d, AmountPerShare: 0.25, Currency: "USD"})
	}
	return events, nil
}

func (fakeSource) GetExchangeRate(ctx context.Context, pair string) (float64, error) {
	if pair == "USDJPY" {
		return 150, nil
	}
	return 0, errors.New("unknown pair")
}

func (fakeSource) GetNews(ctx context.Context, ticker string, limit int) ([]models.NewsItem, error) {
	return []models.NewsItem{{Title: ticker + " beats estimates", Sentiment: "positive"}}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Environment = "test"
	cfg.Analytics.Seed = 42
	cfg.Analytics.SimulationPaths = 200
	cfg.Analytics.CloudSamples = 200

	a, err := app.NewWithSource(cfg, common.NewSilentLogger(), fakeSource{})
	require.NoError(t, err)
	a.Start()
	t.Cleanup(a.Close)
	return NewServer(a)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func testPositions() []models.Position {
	return []models.Position{
		{Ticker: "AAPL", Shares: 10, CostPrice: 100},
		{Ticker: "7203.T", Shares: 100, CostPrice: 2000},
	}
}

func TestHealthAndVersion(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = do(t, s, http.MethodGet, "/api/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec), "version")

	rec = do(t, s, http.MethodPost, "/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestConfig_MasksAPIKey(t *testing.T) {
	s := newTestServer(t)
	s.app.Config.Clients.EODHD.APIKey = "supersecret"

	rec := do(t, s, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "supersecret")
	assert.Contains(t, rec.Body.String(), "supe****")
}

func TestDiagnostics(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/diagnostics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Contains(t, body, "uptime")
}

func TestShutdown_DisabledInProduction(t *testing.T) {
	s := newTestServer(t)
	s.app.Config.Environment = "production"
	rec := do(t, s, http.MethodPost, "/api/shutdown", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTickers_Filter(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/tickers?q=toyota", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]models.TickerInfo](t, rec)
	require.Len(t, body["tickers"], 1)
	assert.Equal(t, "7203.T", body["tickers"][0].Ticker)
}

func TestMarketQuoteAndNews(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/market/quote/aapl", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 150.0, decode[models.Quote](t, rec).Price)

	rec = do(t, s, http.MethodGet, "/api/market/quote/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "data_unavailable", decode[ErrorResponse](t, rec).Code)

	rec = do(t, s, http.MethodGet, "/api/market/news/AAPL?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAPL beats estimates")
}

func TestMarketSignals(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/market/signals/AAPL", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sig := decode[models.TechnicalSignals](t, rec)
	assert.Equal(t, "AAPL", sig.Ticker)
	assert.Greater(t, sig.Observations, 200)
	assert.Greater(t, sig.SMA200, 0.0)

	rec = do(t, s, http.MethodGet, "/api/market/signals/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValuation(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/portfolio/valuation", map[string]interface{}{"positions": testPositions()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	v := decode[models.Valuation](t, rec)
	assert.InDelta(t, 225000+250000, v.Summary.TotalValue, 1e-6)
	assert.Equal(t, 2, v.Summary.HoldingCount)
	assert.Equal(t, 150.0, v.FXRate)
}

func TestValuation_InvalidPosition(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/portfolio/valuation", map[string]interface{}{
		"positions": []models.Position{{Ticker: "AAPL", Shares: -1, CostPrice: 100}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "input_validation", decode[ErrorResponse](t, rec).Code)

	rec = do(t, s, http.MethodPost, "/api/portfolio/valuation", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiskAndCorrelation(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/portfolio/risk", map[string]interface{}{
		"positions": testPositions(),
		"benchmark": "SPY",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[models.RiskReport](t, rec)
	assert.Greater(t, report.Metrics.Observations, 100)

	rec = do(t, s, http.MethodPost, "/api/portfolio/correlation", map[string]interface{}{
		"positions": testPositions(),
		"lookback":  "6mo",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	corr := decode[models.CorrelationMatrix](t, rec)
	assert.Len(t, corr.Tickers, 2)
}

func TestRebalance(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/portfolio/rebalance", map[string]interface{}{
		"positions": testPositions(),
		"targets":   map[string]float64{"AAPL": 70, "7203.T": 20},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/portfolio/rebalance", map[string]interface{}{
		"positions": testPositions(),
		"equal":     true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode[models.RebalancePlan](t, rec)
	assert.Len(t, plan.Allocations, 2)
	assert.True(t, plan.TargetsValid)
}

func TestDividends(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/portfolio/dividends", map[string]interface{}{"positions": testPositions()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "AAPL")
}

func TestLinkRoundTrip(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/portfolio/link", map[string]interface{}{
		"positions": testPositions(),
		"base_url":  "https://folio.example/app",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	link := decode[map[string]string](t, rec)
	require.NotEmpty(t, link["token"])
	assert.True(t, strings.HasPrefix(link["url"], "https://folio.example/app"))

	rec = do(t, s, http.MethodGet, "/api/portfolio/link/"+link["token"], nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[map[string][]models.Position](t, rec)
	assert.Equal(t, testPositions(), got["positions"])

	rec = do(t, s, http.MethodGet, "/api/portfolio/link/!!not-a-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCSVImportExport(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/portfolio/csv", "ticker,shares,cost_price\nAAPL,10,100\n7203.T,100,2000\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	imported := decode[map[string][]models.Position](t, rec)
	assert.Equal(t, testPositions(), imported["positions"])

	rec = do(t, s, http.MethodPost, "/api/portfolio/csv", "ticker,shares\nAAPL,10\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/portfolio/csv/export", map[string]interface{}{"positions": testPositions()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	back, err := portfolio.ReadCSV(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, testPositions(), back)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/sessions", map[string]interface{}{"positions": testPositions()[:1]})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	info := decode[portfolio.SessionInfo](t, rec)
	require.NotEmpty(t, info.ID)
	base := "/api/sessions/" + info.ID

	rec = do(t, s, http.MethodPost, base+"/positions", testPositions()[1])
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info = decode[portfolio.SessionInfo](t, rec)
	assert.Len(t, info.Positions, 2)

	// valuation through the session is remembered until the next edit
	rec = do(t, s, http.MethodPost, "/api/portfolio/valuation", map[string]interface{}{"session_id": info.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, s, http.MethodGet, base+"/results/valuation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 475000, decode[models.Valuation](t, rec).Summary.TotalValue, 1e-6)

	rec = do(t, s, http.MethodDelete, base+"/positions/0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info = decode[portfolio.SessionInfo](t, rec)
	require.Len(t, info.Positions, 1)
	assert.Equal(t, "7203.T", info.Positions[0].Ticker)

	rec = do(t, s, http.MethodGet, base+"/results/valuation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, base+"/positions/9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, base+"/positions", map[string]interface{}{"positions": testPositions()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[portfolio.SessionInfo](t, rec).Positions, 2)

	rec = do(t, s, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionCreate_FromLink(t *testing.T) {
	s := newTestServer(t)
	token, err := portfolio.EncodeLink(testPositions())
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/api/sessions", map[string]string{"link": token})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, testPositions(), decode[portfolio.SessionInfo](t, rec).Positions)
}

func TestCSVImport_IntoSession(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[portfolio.SessionInfo](t, rec).ID

	rec = do(t, s, http.MethodPost, "/api/portfolio/csv?session_id="+id, "ticker,shares,cost_price\nAAPL,10,100\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[portfolio.SessionInfo](t, rec)
	assert.Equal(t, 1, info.Version)
	assert.Len(t, info.Positions, 1)
}

// waitTask polls a task until it reaches a terminal status.
func waitTask(t *testing.T, s *Server, id string) models.Task {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/api/tasks/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		task := decode[models.Task](t, rec)
		if task.Done() {
			return task
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return models.Task{}
}

func TestSimulationTask(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/tasks/simulation", map[string]interface{}{
		"positions": testPositions(),
		"options":   map[string]interface{}{"years": 0.5, "paths": 100},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	submitted := decode[models.Task](t, rec)
	assert.Equal(t, models.TaskKindSimulation, submitted.Kind)

	task := waitTask(t, s, submitted.ID)
	require.Equal(t, models.TaskStatusCompleted, task.Status, task.Error)
	assert.Equal(t, 1.0, task.Progress)

	rec = do(t, s, http.MethodGet, "/api/tasks?kind=simulation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, submitted.ID, decode[models.Task](t, rec).ID)

	rec = do(t, s, http.MethodDelete, "/api/tasks/"+submitted.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOptimizationTask_StoresSessionResult(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/sessions", map[string]interface{}{"positions": testPositions()})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[portfolio.SessionInfo](t, rec).ID

	rec = do(t, s, http.MethodPost, "/api/tasks/optimization", map[string]interface{}{
		"session_id": id,
		"options":    map[string]interface{}{"samples": 100},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	submitted := decode[models.Task](t, rec)
	assert.Equal(t, "optimization:"+id, submitted.Kind)

	task := waitTask(t, s, submitted.ID)
	require.Equal(t, models.TaskStatusCompleted, task.Status, task.Error)

	rec = do(t, s, http.MethodGet, "/api/sessions/"+id+"/results/optimization", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/tasks?kind=optimization&session_id="+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, submitted.ID, decode[models.Task](t, rec).ID)
}

func TestRememberTask_SkipsCancelledRun(t *testing.T) {
	sess, err := portfolio.NewSession(testPositions()...)
	require.NoError(t, err)
	_, version := sess.Positions()
	rs := resolved{session: sess, version: version}

	require.True(t, rs.rememberTask(context.Background(), models.TaskKindSimulation, "newer"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, rs.rememberTask(ctx, models.TaskKindSimulation, "superseded"))

	got, ok := sess.Result(models.TaskKindSimulation)
	require.True(t, ok)
	assert.Equal(t, "newer", got)
}

func TestSimulationTask_FailsOnBadOptions(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/tasks/simulation", map[string]interface{}{
		"positions": testPositions(),
		"options":   map[string]interface{}{"paths": 50000000},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	task := waitTask(t, s, decode[models.Task](t, rec).ID)
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.NotEmpty(t, task.Error)
}

func TestTasks_NotFound(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/tasks/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/tasks/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/tasks?kind=simulation", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/tasks", nil).Code)

	rec := do(t, s, http.MethodPost, "/api/tasks/simulation", map[string]interface{}{"session_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
