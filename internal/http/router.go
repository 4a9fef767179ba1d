// Package httpapi assembles the HTTP surface: public health and metrics
// endpoints, and the authenticated claim API.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	claimhandler "swiftclaim/internal/claim/handler"
	"swiftclaim/internal/platform/metrics"
	"swiftclaim/internal/platform/middleware"
)

// NewRouter wires middleware and routes. Claim routes require a valid bearer
// token; role checks live in the handlers.
func NewRouter(
	claims *claimhandler.Handler,
	verifier *middleware.Verifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Observe(m))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(verifier, logger))
		claims.Register(r)
	})
	return r
}
