// Package audit writes best-effort audit events for authentication and session changes.
package audit

import (
	"context"
	"strconv"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
)

// Audit actions.
const (
	ActionLoginSuccess = "login_success"
	ActionLoginFailure = "login_failure"
	ActionRefresh      = "refresh"
	ActionRefreshFail  = "refresh_failure"
	ActionLogout       = "logout"
	ActionLogoutAll    = "logout_all"
	ActionSweep        = "session_sweep"
	ActionRateLimited  = "rate_limited"
)

// Event is one audit record. Zero-valued fields are omitted. Never put raw tokens or password material here.
type Event struct {
	Action      string
	PrincipalID int64
	Role        string
	SessionID   int64
	Email       string
	Detail      string
	Count       int64
}

// AuditLogger writes a single audit event. Used by the identity service and the rate limit middleware.
// LogEvent is best-effort: failures never reach the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, e Event)
}

// IPExtractor returns the client IP carried by ctx.
type IPExtractor func(context.Context) string

// Logger implements AuditLogger by writing to zap and, when configured, to an OpenTelemetry log provider.
type Logger struct {
	log         *zap.Logger
	otel        otellog.Logger
	ipExtractor IPExtractor
	now         func() time.Time
}

// NewLogger returns a Logger writing to log under the "audit" name. provider and ipExtractor may be nil;
// without an extractor the IP is taken from ClientIPFromContext.
func NewLogger(log *zap.Logger, provider *sdklog.LoggerProvider, ipExtractor IPExtractor) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if ipExtractor == nil {
		ipExtractor = ClientIPFromContext
	}
	l := &Logger{log: log.Named("audit"), ipExtractor: ipExtractor, now: time.Now}
	if provider != nil {
		l.otel = provider.Logger("minha-agenda.audit")
	}
	return l
}

// LogEvent writes one audit entry.
func (l *Logger) LogEvent(ctx context.Context, e Event) {
	if l == nil {
		return
	}
	ip := l.ipExtractor(ctx)
	if ip == "" {
		ip = "unknown"
	}
	fields := []zap.Field{zap.String("action", e.Action), zap.String("ip", ip)}
	if e.PrincipalID != 0 {
		fields = append(fields, zap.Int64("principal_id", e.PrincipalID))
	}
	if e.Role != "" {
		fields = append(fields, zap.String("role", e.Role))
	}
	if e.SessionID != 0 {
		fields = append(fields, zap.Int64("session_id", e.SessionID))
	}
	if e.Email != "" {
		fields = append(fields, zap.String("email", e.Email))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	if e.Count != 0 {
		fields = append(fields, zap.Int64("count", e.Count))
	}
	l.log.Info("audit event", fields...)

	if l.otel != nil {
		l.otel.Emit(ctx, l.record(e, ip))
	}
}

func (l *Logger) record(e Event, ip string) otellog.Record {
	rec := otellog.Record{}
	rec.SetTimestamp(l.now())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(e.Action))
	rec.AddAttributes(otellog.String("action", e.Action), otellog.String("ip", ip))
	if e.PrincipalID != 0 {
		rec.AddAttributes(otellog.String("principal_id", strconv.FormatInt(e.PrincipalID, 10)))
	}
	if e.Role != "" {
		rec.AddAttributes(otellog.String("role", e.Role))
	}
	if e.SessionID != 0 {
		rec.AddAttributes(otellog.Int64("session_id", e.SessionID))
	}
	if e.Detail != "" {
		rec.AddAttributes(otellog.String("detail", e.Detail))
	}
	if e.Count != 0 {
		rec.AddAttributes(otellog.Int64("count", e.Count))
	}
	return rec
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, Event) {}
