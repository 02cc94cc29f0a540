package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/portfolio"
	"github.com/bobmcallan/folio/internal/services/rebalance"
)

// portfolioRequest carries either an explicit position list or a session
// whose positions should be used.
type portfolioRequest struct {
	Positions []models.Position `json:"positions"`
	SessionID string            `json:"session_id,omitempty"`
}

// resolved is the position list behind a request, with its session if any.
type resolved struct {
	positions []models.Position
	session   *portfolio.Session
	version   int
}

// resolvePositions validates the request's positions or loads them from the
// session. It writes the error response and returns false on failure.
func (s *Server) resolvePositions(w http.ResponseWriter, req portfolioRequest) (resolved, bool) {
	if req.SessionID != "" {
		sess, err := s.app.Sessions.Get(req.SessionID)
		if err != nil {
			WriteAnalyticsError(w, err)
			return resolved{}, false
		}
		positions, version := sess.Positions()
		return resolved{positions: positions, session: sess, version: version}, true
	}
	p, err := portfolio.New(req.Positions...)
	if err != nil {
		WriteAnalyticsError(w, err)
		return resolved{}, false
	}
	return resolved{positions: p.Positions()}, true
}

// remember stores a result on the session when the request used one.
func (rs resolved) remember(product string, value interface{}) {
	if rs.session != nil {
		rs.session.StoreResult(product, rs.version, value)
	}
}

// rememberTask stores a background task's result unless the task was
// cancelled or superseded while it ran. Such a run can still finish, but it
// must not replace what a newer run stored.
func (rs resolved) rememberTask(ctx context.Context, product string, value interface{}) bool {
	if ctx.Err() != nil {
		return false
	}
	rs.remember(product, value)
	return true
}

// handleValuation handles POST /api/portfolio/valuation.
func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req portfolioRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req)
	if !ok {
		return
	}
	v, err := s.app.Analytics.Value(r.Context(), rs.positions)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	rs.remember("valuation", v)
	WriteJSON(w, http.StatusOK, v)
}

type riskRequest struct {
	portfolioRequest
	interfaces.RiskOptions
}

// handleRisk handles POST /api/portfolio/risk.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req riskRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req.portfolioRequest)
	if !ok {
		return
	}
	report, err := s.app.Analytics.Risk(r.Context(), rs.positions, req.RiskOptions)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	rs.remember("risk", report)
	WriteJSON(w, http.StatusOK, report)
}

type correlationRequest struct {
	portfolioRequest
	Lookback string `json:"lookback,omitempty"`
}

// handleCorrelation handles POST /api/portfolio/correlation.
func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req correlationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req.portfolioRequest)
	if !ok {
		return
	}
	corr, err := s.app.Analytics.Correlation(r.Context(), rs.positions, req.Lookback)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, corr)
}

type rebalanceRequest struct {
	portfolioRequest
	Targets map[string]float64 `json:"targets"`
	Equal   bool               `json:"equal,omitempty"` // ignore targets and split evenly
}

// handleRebalance handles POST /api/portfolio/rebalance.
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req rebalanceRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req.portfolioRequest)
	if !ok {
		return
	}
	targets := req.Targets
	if req.Equal {
		p, err := portfolio.New(rs.positions...)
		if err != nil {
			WriteAnalyticsError(w, err)
			return
		}
		targets = rebalance.EqualTargets(p.Tickers())
	}
	plan, err := s.app.Analytics.Rebalance(r.Context(), rs.positions, targets)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	rs.remember("rebalance", plan)
	WriteJSON(w, http.StatusOK, plan)
}

// handleDividends handles POST /api/portfolio/dividends.
func (s *Server) handleDividends(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req portfolioRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req)
	if !ok {
		return
	}
	report, err := s.app.Analytics.Dividends(r.Context(), rs.positions)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	rs.remember("dividends", report)
	WriteJSON(w, http.StatusOK, report)
}

type linkRequest struct {
	portfolioRequest
	BaseURL string `json:"base_url,omitempty"`
}

// handleLinkEncode handles POST /api/portfolio/link.
func (s *Server) handleLinkEncode(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req linkRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req.portfolioRequest)
	if !ok {
		return
	}
	token, err := portfolio.EncodeLink(rs.positions)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	resp := map[string]string{"token": token}
	if req.BaseURL != "" {
		u, err := portfolio.ShareURL(req.BaseURL, rs.positions)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid base_url: "+err.Error())
			return
		}
		resp["url"] = u
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleLinkDecode handles GET /api/portfolio/link/{token}.
func (s *Server) handleLinkDecode(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/api/portfolio/link/")
	positions, err := portfolio.DecodeLink(token)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// handleCSVImport handles POST /api/portfolio/csv with a CSV body.
// ?session_id= replaces that session's positions with the import.
func (s *Server) handleCSVImport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	positions, err := portfolio.ReadCSV(bytes.NewReader(body))
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}

	if id := r.URL.Query().Get("session_id"); id != "" {
		sess, err := s.app.Sessions.Get(id)
		if err != nil {
			WriteAnalyticsError(w, err)
			return
		}
		if err := sess.ReplaceAll(positions); err != nil {
			WriteAnalyticsError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sess.Snapshot())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// handleCSVExport handles POST /api/portfolio/csv/export.
func (s *Server) handleCSVExport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req portfolioRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := portfolio.WriteCSV(&buf, rs.positions); err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="portfolio.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
