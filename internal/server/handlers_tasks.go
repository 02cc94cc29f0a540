package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

type simulationRequest struct {
	portfolioRequest
	Options interfaces.SimulationOptions `json:"options"`
}

type optimizationRequest struct {
	portfolioRequest
	Options interfaces.OptimizationOptions `json:"options"`
}

// taskKind scopes a task kind to a session so sessions do not supersede
// each other's runs.
func taskKind(kind, sessionID string) string {
	if sessionID == "" {
		return kind
	}
	return kind + ":" + sessionID
}

// handleSubmitSimulation handles POST /api/tasks/simulation. The run
// supersedes any unfinished simulation of the same scope.
func (s *Server) handleSubmitSimulation(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req simulationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req.portfolioRequest)
	if !ok {
		return
	}

	analytics := s.app.Analytics
	opts := req.Options
	task := s.app.Tasks.Submit(taskKind(models.TaskKindSimulation, req.SessionID), func(ctx context.Context, progress interfaces.ProgressFunc) (interface{}, error) {
		res, err := analytics.Simulate(ctx, rs.positions, opts, progress)
		if err != nil {
			return nil, err
		}
		rs.rememberTask(ctx, models.TaskKindSimulation, res)
		return res, nil
	})
	WriteJSON(w, http.StatusAccepted, task)
}

// handleSubmitOptimization handles POST /api/tasks/optimization.
func (s *Server) handleSubmitOptimization(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req optimizationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	rs, ok := s.resolvePositions(w, req.portfolioRequest)
	if !ok {
		return
	}

	analytics := s.app.Analytics
	opts := req.Options
	task := s.app.Tasks.Submit(taskKind(models.TaskKindOptimization, req.SessionID), func(ctx context.Context, progress interfaces.ProgressFunc) (interface{}, error) {
		res, err := analytics.Optimize(ctx, rs.positions, opts, progress)
		if err != nil {
			return nil, err
		}
		rs.rememberTask(ctx, models.TaskKindOptimization, res)
		return res, nil
	})
	WriteJSON(w, http.StatusAccepted, task)
}

// routeTask dispatches /api/tasks/{id}: GET polls, DELETE cancels.
func (s *Server) routeTask(w http.ResponseWriter, r *http.Request) {
	id := PathParam(r, "/api/tasks/", "")
	if id == "" {
		s.handleTaskLatest(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, ok := s.app.Tasks.Get(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "task not found")
			return
		}
		WriteJSON(w, http.StatusOK, task)
	case http.MethodDelete:
		if !s.app.Tasks.Cancel(id) {
			if _, ok := s.app.Tasks.Get(id); !ok {
				WriteError(w, http.StatusNotFound, "task not found")
				return
			}
			WriteError(w, http.StatusConflict, "task already finished")
			return
		}
		task, _ := s.app.Tasks.Get(id)
		WriteJSON(w, http.StatusOK, task)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleTaskLatest handles GET /api/tasks?kind=simulation[&session_id=].
func (s *Server) handleTaskLatest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind == "" {
		WriteError(w, http.StatusBadRequest, "kind is required")
		return
	}
	task, ok := s.app.Tasks.Latest(taskKind(kind, r.URL.Query().Get("session_id")))
	if !ok {
		WriteError(w, http.StatusNotFound, "no task of kind "+kind)
		return
	}
	WriteJSON(w, http.StatusOK, task)
}

// handleTasksWS upgrades GET /api/tasks/ws to a task event stream.
func (s *Server) handleTasksWS(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s.app.Tasks.ServeWS(w, r)
}
