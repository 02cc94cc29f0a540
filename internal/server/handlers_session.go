package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/portfolio"
)

// handleSessionCreate handles POST /api/sessions with an optional
// {"positions": [...]} or {"link": "<token>"} body.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Positions []models.Position `json:"positions"`
		Link      string            `json:"link,omitempty"`
	}
	if r.ContentLength != 0 && !DecodeJSON(w, r, &req) {
		return
	}

	positions := req.Positions
	if req.Link != "" {
		decoded, err := portfolio.DecodeLink(req.Link)
		if err != nil {
			WriteAnalyticsError(w, err)
			return
		}
		positions = decoded
	}

	sess, err := s.app.Sessions.Create(positions...)
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	s.logger.Debug().Str("session", sess.ID()).Int("positions", len(positions)).Msg("Session created")
	WriteJSON(w, http.StatusCreated, sess.Snapshot())
}

// routeSessions dispatches /api/sessions/{id}[/positions[/{index}]|/results/{product}].
func (s *Server) routeSessions(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		s.handleSessionCreate(w, r)
		return
	}

	sess, err := s.app.Sessions.Get(parts[0])
	if err != nil {
		WriteAnalyticsError(w, err)
		return
	}

	switch {
	case len(parts) == 1:
		s.handleSession(w, r, sess)
	case len(parts) == 2 && parts[1] == "positions":
		s.handleSessionPositions(w, r, sess)
	case len(parts) == 3 && parts[1] == "positions":
		s.handleSessionPosition(w, r, sess, parts[2])
	case len(parts) == 3 && parts[1] == "results":
		s.handleSessionResult(w, r, sess, parts[2])
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// handleSession serves GET (snapshot) and DELETE (end) on a session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sess *portfolio.Session) {
	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, sess.Snapshot())
	case http.MethodDelete:
		s.app.Sessions.End(sess.ID())
		w.WriteHeader(http.StatusNoContent)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleSessionPositions adds one position (POST) or replaces all (PUT).
func (s *Server) handleSessionPositions(w http.ResponseWriter, r *http.Request, sess *portfolio.Session) {
	switch r.Method {
	case http.MethodPost:
		var pos models.Position
		if !DecodeJSON(w, r, &pos) {
			return
		}
		if err := sess.Add(pos); err != nil {
			WriteAnalyticsError(w, err)
			return
		}
	case http.MethodPut:
		var req struct {
			Positions []models.Position `json:"positions"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		if err := sess.ReplaceAll(req.Positions); err != nil {
			WriteAnalyticsError(w, err)
			return
		}
	default:
		RequireMethod(w, r, http.MethodPost, http.MethodPut)
		return
	}
	WriteJSON(w, http.StatusOK, sess.Snapshot())
}

// handleSessionPosition removes the position at index (DELETE).
func (s *Server) handleSessionPosition(w http.ResponseWriter, r *http.Request, sess *portfolio.Session, index string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	i, err := strconv.Atoi(index)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := sess.Remove(i); err != nil {
		WriteAnalyticsError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sess.Snapshot())
}

// handleSessionResult returns the latest result for product if it was
// computed from the session's current positions.
func (s *Server) handleSessionResult(w http.ResponseWriter, r *http.Request, sess *portfolio.Session, product string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	v, ok := sess.Result(product)
	if !ok {
		WriteError(w, http.StatusNotFound, "no current "+product+" result")
		return
	}
	WriteJSON(w, http.StatusOK, v)
}
