// Package statusapi serves a localhost-only HTTP surface for operators:
// liveness and cache/sync statistics. It is off unless STATUS_ADDR is
// configured and never exposes note content.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/notebridge/internal/cache"
	"github.com/erauner12/notebridge/internal/syncer"
)

// SyncStatus is the live sync-engine accessor, satisfied by *syncer.Engine.
type SyncStatus interface {
	Status() syncer.Status
}

// Server holds dependencies for the status handlers.
type Server struct {
	Store   *cache.Store
	Sync    SyncStatus
	Version string

	httpServer *http.Server
}

type statsResponse struct {
	Version       string        `json:"version"`
	Cache         *cache.Stats  `json:"cache"`
	Sync          syncer.Status `json:"sync"`
	BackendCursor string        `json:"backend_cursor,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// Routes creates the status router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	})

	r.Get("/stats", s.handleStats)

	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Store.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cursor, err := s.Store.Meta(r.Context(), cache.MetaBackendCursor)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Version:       s.Version,
		Cache:         stats,
		Sync:          s.Sync.Status(),
		BackendCursor: cursor,
	})
}

// Run serves on addr until ctx is cancelled. addr should be a loopback
// address; the surface is unauthenticated.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Routes(),
		ReadTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("status API listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
