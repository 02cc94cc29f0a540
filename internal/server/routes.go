package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)
	mux.HandleFunc("/debug/memstats", s.handleMemstats)

	// Market data
	mux.HandleFunc("/api/tickers", s.handleTickers)
	mux.HandleFunc("/api/market/quote/", s.handleMarketQuote)
	mux.HandleFunc("/api/market/news/", s.handleMarketNews)
	mux.HandleFunc("/api/market/signals/", s.handleMarketSignals)

	// Portfolio analytics
	mux.HandleFunc("/api/portfolio/valuation", s.handleValuation)
	mux.HandleFunc("/api/portfolio/risk", s.handleRisk)
	mux.HandleFunc("/api/portfolio/correlation", s.handleCorrelation)
	mux.HandleFunc("/api/portfolio/rebalance", s.handleRebalance)
	mux.HandleFunc("/api/portfolio/dividends", s.handleDividends)

	// Portfolio codecs
	mux.HandleFunc("/api/portfolio/link/", s.handleLinkDecode)
	mux.HandleFunc("/api/portfolio/link", s.handleLinkEncode)
	mux.HandleFunc("/api/portfolio/csv/export", s.handleCSVExport)
	mux.HandleFunc("/api/portfolio/csv", s.handleCSVImport)

	// Background tasks
	mux.HandleFunc("/api/tasks/simulation", s.handleSubmitSimulation)
	mux.HandleFunc("/api/tasks/optimization", s.handleSubmitOptimization)
	mux.HandleFunc("/api/tasks/ws", s.handleTasksWS)
	mux.HandleFunc("/api/tasks/", s.routeTask)
	mux.HandleFunc("/api/tasks", s.handleTaskLatest)

	// Sessions
	mux.HandleFunc("/api/sessions/", s.routeSessions)
	mux.HandleFunc("/api/sessions", s.handleSessionCreate)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleConfig reports the effective analytics configuration with secrets masked.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	cfg := s.app.Config
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":   cfg.Environment,
		"cache_backend": cfg.Storage.Cache.Backend,
		"eodhd": map[string]interface{}{
			"base_url":   cfg.Clients.EODHD.BaseURL,
			"api_key":    maskSecret(cfg.Clients.EODHD.APIKey),
			"rate_limit": cfg.Clients.EODHD.RateLimit,
		},
		"analytics": cfg.Analytics,
		"tasks":     cfg.Tasks,
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	uptime := time.Since(s.app.StartupTime).Round(time.Second)

	resp := map[string]interface{}{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"commit":     common.GetGitCommit(),
		"uptime":     uptime.String(),
		"started_at": s.app.StartupTime,
		"sessions":   s.app.Sessions.Len(),
		"ws_clients": s.app.Tasks.Hub().ClientCount(),
	}
	if s.app.Cache != nil {
		resp["cache"] = s.app.Cache.Stats()
	}

	latest := map[string]*models.Task{}
	for _, kind := range []string{models.TaskKindSimulation, models.TaskKindOptimization} {
		if t, ok := s.app.Tasks.Latest(kind); ok {
			latest[kind] = t
		}
	}
	resp["latest_tasks"] = latest

	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMemstats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"heap_alloc_bytes": m.HeapAlloc,
		"heap_inuse_bytes": m.HeapInuse,
		"sys_bytes":        m.Sys,
		"num_gc":           m.NumGC,
		"goroutines":       runtime.NumGoroutine(),
		"heap_alloc_mb":    float64(m.HeapAlloc) / 1024 / 1024,
	})
}

// handleTickers serves the curated ticker list, filtered by ?q= on ticker or name.
func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	out := make([]models.TickerInfo, 0, len(models.CommonTickers))
	for _, t := range models.CommonTickers {
		if q == "" || strings.Contains(strings.ToLower(t.Ticker), q) || strings.Contains(strings.ToLower(t.Name), q) {
			out = append(out, t)
		}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tickers": out})
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
