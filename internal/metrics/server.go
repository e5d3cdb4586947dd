// Package metrics exposes Prometheus instrumentation for the trading desk
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Server serves the Prometheus scrape endpoint on its own port
type Server struct {
	port   int
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a metrics server for the given port
func NewServer(port int) *Server {
	return &Server{
		port:   port,
		logger: log.With().Str("component", "metrics_server").Logger(),
	}
}

// Start begins serving /metrics and /health in the background
func (s *Server) Start() error {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      HTTPMiddleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Int("port", s.port).Msg("Starting metrics server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Shutdown stops the server, waiting for in-flight scrapes
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down metrics server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	return nil
}
