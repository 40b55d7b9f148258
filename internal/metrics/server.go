package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server serves the registry over HTTP.
type Server struct {
	server *http.Server
	path   string
}

// NewServer builds a metrics server for m on addr at path.
func NewServer(addr, path string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(m))

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		path: path,
	}
}

// Handler returns the promhttp handler for m's registry.
func Handler(m *Metrics) http.Handler {
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.server.Addr).Str("path", s.path).Msg("Metrics server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info().Msg("Metrics server stopped")
	return nil
}
