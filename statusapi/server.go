// Package statusapi implements a minimal read-only HTTP status server:
// GET /health reports liveness and a client's Stats() snapshot, GET /cache
// dumps the address-value cache, grounded on the teacher's internal/api
// router and middleware.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/knxnetip/gacache"
)

// StatsFunc adapts a routing.Client.Stats or tunnel.Client.Stats method
// value to a common shape, since their concrete Stats types differ and Go
// interfaces can't erase that structurally. A host application wires this
// as `func(ctx) (any, error) { return client.Stats(ctx) }`.
type StatsFunc func(ctx context.Context) (any, error)

// Logger is the minimal structured-logging interface the server uses.
type Logger interface {
	Info(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Config configures a Server.
type Config struct {
	Addr    string
	Stats   StatsFunc
	Cache   *gacache.Cache
	Logger  Logger
	Version string
}

// Server is a minimal chi-based HTTP server exposing operational status,
// grounded on internal/api/router.go's route-group/middleware layout and
// internal/bridges/knx/health.go's stats shape.
type Server struct {
	cfg       Config
	server    *http.Server
	startTime time.Time
}

// New constructs a Server. Call Start to begin listening.
func New(cfg Config) *Server {
	return &Server{cfg: cfg, startTime: time.Now()}
}

// Start builds the router and begins listening in a background goroutine.
// It returns once the listener is bound, or with an error if binding
// fails.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/cache", s.handleCache)

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := newListener(s.cfg.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logError("status server stopped unexpectedly", "error", err.Error())
		}
	}()

	s.logInfo("status server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"version":        s.cfg.Version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}
	if s.cfg.Stats != nil {
		stats, err := s.cfg.Stats(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["error"] = err.Error()
		} else {
			resp["client"] = stats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": map[string]any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.cfg.Cache.Snapshot()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logInfo("http request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logError("panic recovered in status handler", "panic", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logInfo(msg string, kv ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Info(msg, kv...)
	}
}

func (s *Server) logError(msg string, kv ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Error(msg, kv...)
	}
}
