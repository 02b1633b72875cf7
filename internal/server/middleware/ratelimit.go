package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"minha-agenda/backend/internal/audit"
	"minha-agenda/backend/internal/platform/rbac"
	"minha-agenda/backend/internal/platform/respond"
	"minha-agenda/backend/internal/ratelimit"
)

// FailureMode decides what happens to a request when the counter store is unreachable.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// Decision labels for the rate limit metric.
const (
	DecisionAllowed   = "allowed"
	DecisionRejected  = "rejected"
	DecisionFailOpen  = "error_fail_open"
	DecisionFailClose = "error_fail_closed"
)

// Limiter is the subset of ratelimit.Limiter the middleware needs.
type Limiter interface {
	Check(ctx context.Context, identifier string, limits ratelimit.Limits) (*ratelimit.Violation, error)
	Record(ctx context.Context, identifier string) (ratelimit.Counters, error)
}

// DecisionRecorder counts allow/reject decisions.
type DecisionRecorder interface {
	RateLimitDecision(decision, window string)
}

// RateLimit checks the caller's counters before the handler runs and records the request only when it is admitted.
// Rejected requests never increment the counters.
type RateLimit struct {
	limiter    Limiter
	rules      *ratelimit.Rules
	mode       FailureMode
	trustProxy bool

	audit   audit.AuditLogger
	metrics DecisionRecorder
	log     *zap.Logger
	now     func() time.Time
}

// NewRateLimit returns the middleware. Audit, metrics and logging default to no-ops.
func NewRateLimit(limiter Limiter, rules *ratelimit.Rules, mode FailureMode, trustProxy bool) *RateLimit {
	return &RateLimit{
		limiter:    limiter,
		rules:      rules,
		mode:       mode,
		trustProxy: trustProxy,
		audit:      audit.Nop{},
		log:        zap.NewNop(),
		now:        time.Now,
	}
}

// WithAudit sets the audit logger used for rejected requests.
func (rl *RateLimit) WithAudit(a audit.AuditLogger) *RateLimit {
	if a != nil {
		rl.audit = a
	}
	return rl
}

// WithMetrics sets the decision recorder.
func (rl *RateLimit) WithMetrics(m DecisionRecorder) *RateLimit {
	rl.metrics = m
	return rl
}

// WithLogger sets the logger.
func (rl *RateLimit) WithLogger(l *zap.Logger) *RateLimit {
	if l != nil {
		rl.log = l
	}
	return rl
}

// WithClock replaces the time source used for reset headers.
func (rl *RateLimit) WithClock(now func() time.Time) *RateLimit {
	rl.now = now
	return rl
}

func (rl *RateLimit) decision(decision, window string) {
	if rl.metrics != nil {
		rl.metrics.RateLimitDecision(decision, window)
	}
}

// Middleware wraps next. Run it after rbac.Gate.Optional so authenticated callers are counted per principal.
func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p := rbac.PrincipalFromContext(ctx)
		id := ratelimit.Identify(r, p, rl.trustProxy)
		limits, _ := rl.rules.Match(r.Method, r.URL.Path)

		violation, err := rl.limiter.Check(ctx, id, limits)
		if err != nil {
			rl.storeFailure(w, r, next, err)
			return
		}
		if violation != nil {
			rl.decision(DecisionRejected, string(violation.Window))
			e := audit.Event{Action: audit.ActionRateLimited, Detail: fmt.Sprintf("%s %s %s", violation.Window, r.Method, r.URL.Path)}
			if p != nil {
				e.PrincipalID, e.Role = p.ID, string(p.Role)
			}
			rl.audit.LogEvent(ctx, e)
			rl.reject(w, limits, violation)
			return
		}

		rl.decision(DecisionAllowed, "")
		now := rl.now()
		h := w.Header()
		setLimitHeaders(h, limits)
		h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Unix()+ratelimit.Minute.ResetIn(now), 10))

		// Remaining and Used are only reported when the increment succeeded.
		counters, err := rl.limiter.Record(ctx, id)
		if err != nil {
			rl.log.Warn("rate limit record failed", zap.String("identifier", id), zap.Error(err))
		} else {
			remaining := limits.PerMinute - counters.Minute
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("X-RateLimit-Used", strconv.FormatInt(counters.Minute, 10))
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) storeFailure(w http.ResponseWriter, r *http.Request, next http.Handler, err error) {
	if rl.mode == FailOpen {
		rl.decision(DecisionFailOpen, "")
		rl.log.Warn("rate limit store unavailable, allowing request", zap.String("path", r.URL.Path), zap.Error(err))
		next.ServeHTTP(w, r)
		return
	}
	rl.decision(DecisionFailClose, "")
	rl.log.Error("rate limit store unavailable, rejecting request", zap.String("path", r.URL.Path), zap.Error(err))
	w.Header().Set("Retry-After", "60")
	respond.Error(w, http.StatusTooManyRequests, "limite de requisições indisponível, tente novamente em instantes")
}

var windowNames = map[ratelimit.Window]string{
	ratelimit.Minute: "minuto",
	ratelimit.Hour:   "hora",
	ratelimit.Day:    "dia",
}

func (rl *RateLimit) reject(w http.ResponseWriter, limits ratelimit.Limits, v *ratelimit.Violation) {
	h := w.Header()
	setLimitHeaders(h, limits)
	h.Set("Retry-After", strconv.FormatInt(v.ResetInSeconds, 10))
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Unix()+v.ResetInSeconds, 10))
	msg := fmt.Sprintf("Limite de %d requisições por %s excedido", v.Limit, windowNames[v.Window])
	respond.JSON(w, http.StatusTooManyRequests, msg, respond.Fields{
		"error":   "Rate limit excedido",
		"details": v,
	})
}

func setLimitHeaders(h http.Header, limits ratelimit.Limits) {
	h.Set("X-RateLimit-Limit-Minute", strconv.FormatInt(limits.PerMinute, 10))
	h.Set("X-RateLimit-Limit-Hour", strconv.FormatInt(limits.PerHour, 10))
	h.Set("X-RateLimit-Limit-Day", strconv.FormatInt(limits.PerDay, 10))
}
