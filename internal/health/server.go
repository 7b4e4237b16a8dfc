// Package health serves the liveness and counters endpoints of a running session.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/parley/pkg/negotiation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Pinger checks broker connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsFunc reports the session's counters.
type StatsFunc func() negotiation.Stats

// Response is the JSON body of /healthz.
type Response struct {
	Status string `json:"status"`
	Role   string `json:"role,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Server is an HTTP server exposing /healthz and /stats.
// It runs in a background goroutine and is stopped with Shutdown.
type Server struct {
	server   *http.Server
	listener net.Listener
	pinger   Pinger
	stats    StatsFunc
	role     string
	log      zerolog.Logger
}

// NewServer creates a health server listening on port on all interfaces.
// Port 0 picks a free port; Addr reports it once the server has started.
func NewServer(pinger Pinger, stats StatsFunc, role string, port int, logger zerolog.Logger) *Server {
	s := &Server{
		pinger: pinger,
		stats:  stats,
		role:   role,
		log:    logger.With().Str("component", "health").Logger(),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	return r
}

// Start binds the port and serves in the background. Bind errors, such as a port
// already in use, are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to start health server on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		s.log.Debug().Str("addr", ln.Addr().String()).Msg("Health server starting")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Health server error")
		}
		s.log.Debug().Msg("Health server stopped")
	}()

	return nil
}

// Addr is the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealthz returns 200 when the broker answers PING, 503 otherwise.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := Response{Status: "healthy", Role: s.role}
	code := http.StatusOK
	if err := s.pinger.Ping(ctx); err != nil {
		resp = Response{Status: "unhealthy", Role: s.role, Error: err.Error()}
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode health response")
	}
}
