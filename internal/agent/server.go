package agent

import (
	"io"
	"net/http"

	"github.com/dyluth/parley/pkg/negotiation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NewHandler serves a as an HTTP decision agent, the counterpart of HTTP:
// POST / with an envelope body answers with the agent's reply.
func NewHandler(a negotiation.Agent, logger zerolog.Logger) http.Handler {
	log := logger.With().Str("component", "agent-server").Logger()

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Post("/", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(io.LimitReader(req.Body, maxResponseSize))
		if err != nil {
			http.Error(w, "failed to read request", http.StatusBadRequest)
			return
		}

		reply, err := a.Decide(req.Context(), body)
		if err != nil {
			log.Error().Err(err).Msg("Decision failed")
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		log.Debug().Int("request_bytes", len(body)).Str("reply", snippet(reply)).Msg("Decision served")
		w.Header().Set("Content-Type", "application/json")
		w.Write(reply)
	})
	return r
}
