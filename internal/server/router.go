// Package server assembles the HTTP API: chi routing, shared middleware, health and metrics endpoints.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	identityhandler "minha-agenda/backend/internal/identity/handler"
	"minha-agenda/backend/internal/platform/rbac"
	"minha-agenda/backend/internal/platform/respond"
	"minha-agenda/backend/internal/server/middleware"
)

// Deps holds the pieces the router mounts. Health, Metrics and RateLimit are optional.
type Deps struct {
	Identity *identityhandler.Handler
	Gate     *rbac.Gate
	// RateLimit guards every /api route. Nil disables rate limiting.
	RateLimit *middleware.RateLimit
	Health    http.Handler
	Metrics   http.Handler
	Observer  middleware.RequestObserver
	Log       *zap.Logger
	// TrustProxy resolves client IPs from proxy headers for audit events and anonymous rate limit keys.
	TrustProxy bool
	// ServiceName names the otelhttp server spans.
	ServiceName string
}

// NewRouter returns the API handler wrapped in otelhttp.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.Recoverer,
		middleware.ClientIP(d.TrustProxy),
		middleware.RequestLogger(log, d.Observer, "/healthz", "/metrics"),
	)

	if d.Health != nil {
		r.Method(http.MethodGet, "/healthz", d.Health)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(d.Gate.Optional)
		if d.RateLimit != nil {
			api.Use(d.RateLimit.Middleware)
		}
		d.Identity.Routes(api)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusNotFound, "rota não encontrada")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "método não permitido")
	})

	name := d.ServiceName
	if name == "" {
		name = "minha-agenda-api"
	}
	return otelhttp.NewHandler(r, name,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	)
}

// NewHTTPServer returns an http.Server with the timeouts used by cmd/server.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
