// Package api exposes the authentication protocol over HTTP: each
// remote-callable method of the controller becomes a POST endpoint with
// JSON bodies whose sealed fields travel as base64.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/ticketd/internal/logger"
	"github.com/marmos91/ticketd/pkg/controller"
	"github.com/marmos91/ticketd/pkg/metrics"
)

// NewRouter builds the chi router with middleware and routes.
//
// Routes:
//   - GET  /health                                        - liveness probe
//   - GET  /metrics                                       - Prometheus metrics (when enabled)
//   - POST /api/v1/auth/requestTicketGrantingTicket       - KDC
//   - POST /api/v1/auth/requestClientServerTicket         - TGS
//   - POST /api/v1/auth/validateClientServerTicket        - SS
//   - POST /api/v1/auth/changeCredentials
//   - POST /api/v1/auth/register
//   - POST /api/v1/auth/removeUser
//   - POST /api/v1/auth/setAdministrator
//   - POST /api/v1/auth/requestServiceServerSecretKey
//   - POST /api/v1/auth/isAdmin
//   - POST /api/v1/auth/hasUser
func NewRouter(c *controller.Controller, m *metrics.AuthMetrics, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	if metricsEnabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	h := NewAuthHandler(c, m)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/requestTicketGrantingTicket", h.RequestTicketGrantingTicket)
		r.Post("/requestClientServerTicket", h.RequestClientServerTicket)
		r.Post("/validateClientServerTicket", h.ValidateClientServerTicket)
		r.Post("/changeCredentials", h.ChangeCredentials)
		r.Post("/register", h.Register)
		r.Post("/removeUser", h.RemoveUser)
		r.Post("/setAdministrator", h.SetAdministrator)
		r.Post("/requestServiceServerSecretKey", h.RequestServiceServerSecretKey)
		r.Post("/isAdmin", h.IsAdmin)
		r.Post("/hasUser", h.HasUser)
	})

	return r
}

// requestLogger logs each request through the internal logger instead of
// chi's default stdlib logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("Handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
