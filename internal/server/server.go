// Package server exposes the HTTP and WebSocket surface of the runtime:
// task submission over a WebSocket, task queries and health over REST.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	mesh "github.com/nevindra/mesh"
)

// Server routes API requests. Construct with New, serve via Handler.
type Server struct {
	store  mesh.TaskStore
	bus    *mesh.Bus
	worker *Worker
	logger *slog.Logger
	mux    *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server wired to the store, bus and worker.
func New(store mesh.TaskStore, bus *mesh.Bus, worker *Worker, opts ...Option) *Server {
	s := &Server{
		store:  store,
		bus:    bus,
		worker: worker,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tasks/query", s.handleTasksQuery)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/task/process", s.handleTaskProcess)
	s.mux = mux
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// envelope is the REST response wrapper.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type queryRequest struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Status   string `json:"status"`
	TaskName string `json:"task_name"`
}

type queryResponse struct {
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Tasks    []mesh.Task `json:"tasks"`
}

func (s *Server) handleTasksQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Page < 1 || req.PageSize < 1 || req.PageSize > 100 {
		s.writeJSON(w, http.StatusBadRequest, envelope{Code: 400, Message: "page must be >= 1 and page_size in [1,100]"})
		return
	}

	tasks, total, err := s.store.QueryTasks(r.Context(), mesh.TaskQuery{
		Page:         req.Page,
		PageSize:     req.PageSize,
		Status:       mesh.TaskStatus(req.Status),
		NameContains: req.TaskName,
	})
	if err != nil {
		s.logger.Error("server: task query failed", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, envelope{Code: 500, Message: "query failed"})
		return
	}
	if tasks == nil {
		tasks = []mesh.Task{}
	}

	s.writeJSON(w, http.StatusOK, envelope{
		Code:    0,
		Message: "success",
		Data: queryResponse{
			Total:    total,
			Page:     req.Page,
			PageSize: req.PageSize,
			Tasks:    tasks,
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("server: write response failed", "err", err)
	}
}
