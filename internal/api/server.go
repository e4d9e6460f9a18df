// Package api serves the event history and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/mensfeld/fwmon/internal/monitor"
	"github.com/mensfeld/fwmon/internal/store"
)

// ShutdownTimeout bounds a graceful shutdown
const ShutdownTimeout = 5 * time.Second

// History is the part of a monitoring session the API exposes
type History interface {
	Recent(n int) []store.Record
	Count() int
	Clear()
	Status() monitor.Status
}

// EventsResponse is the body of GET /api/v1/events
type EventsResponse struct {
	Total  int            `json:"total"`
	Events []store.Record `json:"events"`
}

// Server is the HTTP front end of a session
type Server struct {
	history History
	router  *mux.Router
	logger  *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer builds the router. metricsHandler may be nil, in which case
// /metrics is not registered.
func NewServer(history History, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		history: history,
		router:  mux.NewRouter(),
		logger:  logger,
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/events", s.eventsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.clearHandler).Methods(http.MethodDelete)
	v1.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)

	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := s.server
	go func() {
		s.logger.Info("api server starting", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	s.logger.Info("api server exited")
	return nil
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			http.Error(w, fmt.Sprintf("invalid n %q", raw), http.StatusBadRequest)
			return
		}
		n = v
	}

	events := s.history.Recent(n)
	if events == nil {
		events = []store.Record{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{
		Total:  s.history.Count(),
		Events: events,
	})
}

func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	s.history.Clear()
	s.logger.Info("history cleared via api", "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.Status())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
