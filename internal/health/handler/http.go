// Package handler serves GET /healthz for load balancers and orchestrators.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"minha-agenda/backend/internal/platform/respond"
)

// Pinger checks a backing store (Postgres pool, Redis counter store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks the in-process policy engine.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is one named dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Handler reports 200 when every check passes and 503 otherwise. The body lists each check as "ok" or "unavailable".
type Handler struct {
	checks  []Check
	timeout time.Duration
	log     *zap.Logger
}

// New returns a Handler. Nil dependencies are skipped so a binary without Redis can still serve health.
func New(db Pinger, redis Pinger, policy PolicyChecker, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{timeout: 2 * time.Second, log: log}
	if db != nil {
		h.checks = append(h.checks, Check{Name: "database", Ping: db.Ping})
	}
	if redis != nil {
		h.checks = append(h.checks, Check{Name: "redis", Ping: redis.Ping})
	}
	if policy != nil {
		h.checks = append(h.checks, Check{Name: "policy", Ping: policy.HealthCheck})
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			h.log.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
			results[c.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}
	msg := "ok"
	if status != http.StatusOK {
		msg = "degraded"
	}
	respond.JSON(w, status, msg, respond.Fields{"checks": results})
}
