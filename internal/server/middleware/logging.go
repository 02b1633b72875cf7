// Package middleware holds the HTTP middleware shared by every route: request logging, client IP capture
// for audit events, and rate limiting.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"minha-agenda/backend/internal/audit"
	"minha-agenda/backend/internal/ratelimit"
)

// RequestObserver records request latency. *metrics.Metrics implements it.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, d time.Duration)
}

// ClientIP stores the resolved caller address in the request context for audit events.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := audit.WithClientIP(r.Context(), ratelimit.ClientIP(r, trustProxy))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger logs one line per request and feeds obs with the chi route pattern so metric labels stay bounded.
// obs may be nil. Paths in skip are neither logged nor observed.
func RequestLogger(log *zap.Logger, obs RequestObserver, skip ...string) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			if obs != nil {
				obs.ObserveRequest(route, r.Method, status, elapsed)
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
				zap.String("client_ip", audit.ClientIPFromContext(r.Context())),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				log.Error("http request", fields...)
			case status >= 400:
				log.Warn("http request", fields...)
			default:
				log.Info("http request", fields...)
			}
		})
	}
}
