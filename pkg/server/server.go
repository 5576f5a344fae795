// Package server exposes the sync service over HTTP: a REST surface
// for canonical content, a websocket room endpoint per gist, and the
// operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gistsync/gistsync/pkg/gist"
	"github.com/gistsync/gistsync/pkg/room"
)

// Server serves the REST and websocket surfaces for one hub.
type Server struct {
	cfg    Config
	store  gist.Store
	hub    *room.Hub
	logger *slog.Logger

	httpServer *http.Server
}

// New builds a server around the given store and hub.
func New(store gist.Store, hub *room.Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg.withDefaults(),
		store:  store,
		hub:    hub,
		logger: logger.With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/gists/{gistID}", s.handleGetGist)
	r.Get("/parties/gist/{gistID}", s.handleRoom)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "address", s.cfg.Address)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP, then closes every room.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.hub.Close()
	if err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetGist serves the persisted canonical content. A known gist
// without content answers {"content": null} the same as an unknown
// one; sessions treat both as "seed from blank".
func (s *Server) handleGetGist(w http.ResponseWriter, r *http.Request) {
	gistID := chi.URLParam(r, "gistID")

	content, ok, err := s.store.Load(r.Context(), gistID)
	if err != nil {
		s.logger.Error("canonical load failed", "gist_id", gistID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "load failed"})
		return
	}

	body := struct {
		Content *string `json:"content"`
	}{}
	if ok {
		body.Content = &content
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
