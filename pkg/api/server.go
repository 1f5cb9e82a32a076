package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/marmos91/ticketd/internal/logger"
	"github.com/marmos91/ticketd/pkg/config"
	"github.com/marmos91/ticketd/pkg/controller"
	"github.com/marmos91/ticketd/pkg/metrics"
)

// Server is the HTTP server carrying the authentication protocol. It is
// created stopped; Start begins serving and Shutdown drains gracefully.
type Server struct {
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer builds the server from configuration.
func NewServer(cfg config.APIConfig, c *controller.Controller, m *metrics.AuthMetrics, metricsEnabled bool) *Server {
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(c, m, metricsEnabled),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	logger.Info("API server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info("Shutting down API server")
		err = s.server.Shutdown(ctx)
	})
	return err
}
