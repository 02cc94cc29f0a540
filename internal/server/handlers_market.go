package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/signals"
)

// signalsLookback covers a 200-day average plus a 52-week range.
const signalsLookback = 400 * 24 * time.Hour

// handleMarketQuote handles GET /api/market/quote/{ticker}.
func (s *Server) handleMarketQuote(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ticker := strings.ToUpper(PathParam(r, "/api/market/quote/", ""))
	if ticker == "" {
		WriteError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	q := s.app.Gateway.GetQuote(r.Context(), ticker)
	if q.Price <= 0 {
		WriteErrorWithCode(w, http.StatusNotFound, "no quote for "+ticker, "data_unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, q)
}

// handleMarketNews handles GET /api/market/news/{ticker}?limit=N.
func (s *Server) handleMarketNews(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ticker := strings.ToUpper(PathParam(r, "/api/market/news/", ""))
	if ticker == "" {
		WriteError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 50 {
			limit = v
		}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"news":   s.app.Gateway.GetNews(r.Context(), ticker, limit),
	})
}

// handleMarketSignals handles GET /api/market/signals/{ticker}.
func (s *Server) handleMarketSignals(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ticker := strings.ToUpper(PathParam(r, "/api/market/signals/", ""))
	if ticker == "" {
		WriteError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	bars := s.app.Gateway.GetPriceHistory(r.Context(), ticker, signalsLookback)
	if len(bars) == 0 {
		WriteErrorWithCode(w, http.StatusNotFound, "no price history for "+ticker, "data_unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, signals.Compute(ticker, bars))
}
