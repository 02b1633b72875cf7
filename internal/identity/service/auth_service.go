package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"minha-agenda/backend/internal/audit"
	principaldomain "minha-agenda/backend/internal/principal/domain"
	"minha-agenda/backend/internal/security"
	sessiondomain "minha-agenda/backend/internal/session/domain"
	sessionrepo "minha-agenda/backend/internal/session/repository"
)

// ErrUnauthorized is the single error for every authentication failure: unknown email, wrong password,
// invalid or expired token, revoked session, reused refresh token, lost refresh race.
var ErrUnauthorized = errors.New("unauthorized")

// Outcome labels passed to Recorder.
const (
	OutcomeSuccess      = "success"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// PrincipalFinder is the minimal principal directory needed by the auth service.
type PrincipalFinder interface {
	FindByEmail(ctx context.Context, email string, role principaldomain.Role) (*principaldomain.Principal, error)
	FindByID(ctx context.Context, id int64, role principaldomain.Role) (*principaldomain.Principal, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	Renew(ctx context.Context, s *sessiondomain.Session, previousRefreshHash string) error
	FindByRefreshTokenHash(ctx context.Context, hash string, at time.Time) (*sessiondomain.Session, error)
	FindByAccessTokenHash(ctx context.Context, hash string, at time.Time) (*sessiondomain.Session, error)
	Revoke(ctx context.Context, id int64, at time.Time) error
	RevokeAllForPrincipal(ctx context.Context, principalID int64, role principaldomain.Role, at time.Time) (int64, error)
	ListActive(ctx context.Context, principalID int64, role principaldomain.Role, at time.Time) ([]*sessiondomain.Session, error)
	SweepExpired(ctx context.Context, at time.Time) (int64, error)
}

// Recorder receives operation outcomes for metrics. *metrics.Metrics implements it.
type Recorder interface {
	AuthOutcome(operation, outcome string)
	SessionsSwept(n int64)
}

// TokenPair is the result of Login and Refresh. Codes are raw; only their hashes are stored.
type TokenPair struct {
	SessionID int64
	Access    security.Token
	Refresh   security.Token
	Principal principaldomain.View
}

// Identity is a validated access token resolved to its principal and session.
type Identity struct {
	Principal principaldomain.View
	SessionID int64
}

// SessionInfo describes an open session without any token material.
type SessionInfo struct {
	ID               int64      `json:"id"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
	AccessExpiresAt  time.Time  `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time  `json:"refreshExpiresAt"`
	Current          bool       `json:"current"`
}

// AuthService implements login, refresh with rotation, logout, access token validation and the expiry sweep.
type AuthService struct {
	principals PrincipalFinder
	sessions   SessionRepo
	hasher     *security.PasswordHasher
	tokens     *security.TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration

	audit   audit.AuditLogger
	metrics Recorder
	log     *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. Audit, metrics and logging default to no-ops.
func NewAuthService(
	principals PrincipalFinder,
	sessions SessionRepo,
	hasher *security.PasswordHasher,
	tokens *security.TokenCodec,
	accessTTL, refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		principals: principals,
		sessions:   sessions,
		hasher:     hasher,
		tokens:     tokens,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		audit:      audit.Nop{},
		log:        zap.NewNop(),
		tracer:     otel.Tracer("minha-agenda/identity"),
		now:        time.Now,
	}
}

// WithAudit sets the audit logger.
func (s *AuthService) WithAudit(a audit.AuditLogger) *AuthService {
	if a != nil {
		s.audit = a
	}
	return s
}

// WithMetrics sets the outcome recorder.
func (s *AuthService) WithMetrics(r Recorder) *AuthService {
	s.metrics = r
	return s
}

// WithLogger sets the logger used for storage failures.
func (s *AuthService) WithLogger(l *zap.Logger) *AuthService {
	if l != nil {
		s.log = l.Named("identity")
	}
	return s
}

// WithClock sets the clock used for session lookups. It should match the token codec's clock.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Login checks email and password within role's class and opens a new session. Unknown email and wrong
// password both return ErrUnauthorized after the same bcrypt work.
func (s *AuthService) Login(ctx context.Context, email, password string, role principaldomain.Role) (pair *TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "identity.Login", trace.WithAttributes(attribute.String("role", string(role))))
	defer func() { s.finish(span, "login", err) }()

	email = principaldomain.NormalizeEmail(email)
	if email == "" || password == "" || !role.Valid() {
		s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLoginFailure, Role: string(role), Email: email, Detail: "missing credentials"})
		return nil, ErrUnauthorized
	}
	p, err := s.principals.FindByEmail(ctx, email, role)
	if err != nil {
		s.log.Error("login: principal lookup failed", zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("login: %w", err)
	}
	if p == nil {
		s.hasher.VerifyNothing(password)
		s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLoginFailure, Role: string(role), Email: email, Detail: "unknown principal"})
		return nil, ErrUnauthorized
	}
	if !s.hasher.Verify(password, p.PasswordHash) {
		s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLoginFailure, PrincipalID: p.ID, Role: string(role), Detail: "bad password"})
		return nil, ErrUnauthorized
	}

	access, refresh, err := s.mintPair(p)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		PrincipalID:   p.ID,
		PrincipalRole: p.Role,
	}
	applyTokens(sess, access, refresh)
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.log.Error("login: create session failed", zap.Int64("principal_id", p.ID), zap.Error(err))
		return nil, fmt.Errorf("login: %w", err)
	}
	span.SetAttributes(attribute.Int64("session.id", sess.ID))
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLoginSuccess, PrincipalID: p.ID, Role: string(p.Role), SessionID: sess.ID})
	return &TokenPair{SessionID: sess.ID, Access: access, Refresh: refresh, Principal: p.View()}, nil
}

// Refresh rotates the token pair of the session that owns refreshCode. The session row keeps its id and the old
// refresh token stops matching. Of two concurrent refreshes with the same code only one succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshCode string) (pair *TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "identity.Refresh")
	defer func() { s.finish(span, "refresh", err) }()

	if refreshCode == "" {
		return nil, ErrUnauthorized
	}
	if _, verr := s.tokens.Verify(refreshCode); verr != nil {
		s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionRefreshFail, Detail: "invalid token"})
		return nil, ErrUnauthorized
	}
	previousHash := security.HashToken(refreshCode)
	sess, err := s.sessions.FindByRefreshTokenHash(ctx, previousHash, s.now())
	if err != nil {
		s.log.Error("refresh: session lookup failed", zap.Error(err))
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if sess == nil {
		s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionRefreshFail, Detail: "no live session"})
		return nil, ErrUnauthorized
	}
	p, err := s.principals.FindByID(ctx, sess.PrincipalID, sess.PrincipalRole)
	if err != nil {
		s.log.Error("refresh: principal lookup failed", zap.Int64("session_id", sess.ID), zap.Error(err))
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if p == nil {
		s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionRefreshFail, PrincipalID: sess.PrincipalID, SessionID: sess.ID, Detail: "principal gone"})
		return nil, ErrUnauthorized
	}

	access, refresh, err := s.mintPair(p)
	if err != nil {
		return nil, err
	}
	applyTokens(sess, access, refresh)
	if err := s.sessions.Renew(ctx, sess, previousHash); err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionRefreshFail, PrincipalID: p.ID, SessionID: sess.ID, Detail: "lost rotation race"})
			return nil, ErrUnauthorized
		}
		s.log.Error("refresh: renew session failed", zap.Int64("session_id", sess.ID), zap.Error(err))
		return nil, fmt.Errorf("refresh: %w", err)
	}
	span.SetAttributes(attribute.Int64("session.id", sess.ID))
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionRefresh, PrincipalID: p.ID, Role: string(p.Role), SessionID: sess.ID})
	return &TokenPair{SessionID: sess.ID, Access: access, Refresh: refresh, Principal: p.View()}, nil
}

// Logout revokes the session that owns accessCode. An unknown, expired or already revoked token is a no-op.
func (s *AuthService) Logout(ctx context.Context, accessCode string) (err error) {
	ctx, span := s.tracer.Start(ctx, "identity.Logout")
	defer func() { s.finish(span, "logout", err) }()

	if accessCode == "" {
		return nil
	}
	now := s.now()
	sess, err := s.sessions.FindByAccessTokenHash(ctx, security.HashToken(accessCode), now)
	if err != nil {
		s.log.Error("logout: session lookup failed", zap.Error(err))
		return fmt.Errorf("logout: %w", err)
	}
	if sess == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sess.ID, now); err != nil {
		s.log.Error("logout: revoke failed", zap.Int64("session_id", sess.ID), zap.Error(err))
		return fmt.Errorf("logout: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLogout, PrincipalID: sess.PrincipalID, Role: string(sess.PrincipalRole), SessionID: sess.ID})
	return nil
}

// LogoutEverywhere revokes every open session of the principal that owns accessCode and returns how many were revoked.
func (s *AuthService) LogoutEverywhere(ctx context.Context, accessCode string) (n int64, err error) {
	ctx, span := s.tracer.Start(ctx, "identity.LogoutEverywhere")
	defer func() { s.finish(span, "logout_all", err) }()

	id, err := s.authenticate(ctx, accessCode)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, ErrUnauthorized
	}
	n, err = s.sessions.RevokeAllForPrincipal(ctx, id.Principal.ID, id.Principal.Role, s.now())
	if err != nil {
		s.log.Error("logout all: revoke failed", zap.Int64("principal_id", id.Principal.ID), zap.Error(err))
		return 0, fmt.Errorf("logout all: %w", err)
	}
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionLogoutAll, PrincipalID: id.Principal.ID, Role: string(id.Principal.Role), Count: n})
	return n, nil
}

// ValidateAccessToken returns the principal behind accessCode, or nil when the token is invalid, expired or revoked
// or its principal is gone. An error means storage failed.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessCode string) (*principaldomain.View, error) {
	id, err := s.Authenticate(ctx, accessCode)
	if err != nil || id == nil {
		return nil, err
	}
	return &id.Principal, nil
}

// Authenticate is ValidateAccessToken that also reports the session id.
func (s *AuthService) Authenticate(ctx context.Context, accessCode string) (id *Identity, err error) {
	ctx, span := s.tracer.Start(ctx, "identity.ValidateAccessToken")
	defer func() {
		if err == nil && id == nil {
			s.finish(span, "validate", ErrUnauthorized)
			return
		}
		s.finish(span, "validate", err)
	}()
	return s.authenticate(ctx, accessCode)
}

// authenticate verifies the signature, then requires a live session row for the token hash, then loads the
// principal by the role stored on the session.
func (s *AuthService) authenticate(ctx context.Context, accessCode string) (*Identity, error) {
	if accessCode == "" {
		return nil, nil
	}
	payload, err := s.tokens.Verify(accessCode)
	if err != nil {
		return nil, nil
	}
	sess, err := s.sessions.FindByAccessTokenHash(ctx, security.HashToken(accessCode), s.now())
	if err != nil {
		s.log.Error("validate: session lookup failed", zap.Int64("principal_id", payload.SubjectID), zap.Error(err))
		return nil, fmt.Errorf("validate: %w", err)
	}
	if sess == nil || sess.PrincipalID != payload.SubjectID || string(sess.PrincipalRole) != payload.Role {
		return nil, nil
	}
	p, err := s.principals.FindByID(ctx, sess.PrincipalID, sess.PrincipalRole)
	if err != nil {
		s.log.Error("validate: principal lookup failed", zap.Int64("session_id", sess.ID), zap.Error(err))
		return nil, fmt.Errorf("validate: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	return &Identity{Principal: p.View(), SessionID: sess.ID}, nil
}

// ListSessions returns the principal's open sessions. currentSessionID is flagged as Current.
func (s *AuthService) ListSessions(ctx context.Context, principal principaldomain.View, currentSessionID int64) ([]SessionInfo, error) {
	list, err := s.sessions.ListActive(ctx, principal.ID, principal.Role, s.now())
	if err != nil {
		s.log.Error("list sessions failed", zap.Int64("principal_id", principal.ID), zap.Error(err))
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionInfo{
			ID:               sess.ID,
			CreatedAt:        sess.CreatedAt,
			UpdatedAt:        sess.UpdatedAt,
			AccessExpiresAt:  sess.AccessExpiresAt,
			RefreshExpiresAt: sess.RefreshExpiresAt,
			Current:          sess.ID == currentSessionID,
		})
	}
	return out, nil
}

// SweepExpiredSessions deactivates sessions whose tokens have both expired and returns how many changed.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (n int64, err error) {
	ctx, span := s.tracer.Start(ctx, "identity.SweepExpiredSessions")
	defer func() { s.finish(span, "sweep", err) }()

	n, err = s.sessions.SweepExpired(ctx, s.now())
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		return 0, fmt.Errorf("sweep: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionsSwept(n)
	}
	span.SetAttributes(attribute.Int64("sessions.swept", n))
	s.audit.LogEvent(ctx, audit.Event{Action: audit.ActionSweep, Count: n})
	return n, nil
}

func (s *AuthService) mintPair(p *principaldomain.Principal) (access, refresh security.Token, err error) {
	access, err = s.tokens.Mint(p.ID, p.Name, string(p.Role), s.accessTTL)
	if err != nil {
		return security.Token{}, security.Token{}, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err = s.tokens.Mint(p.ID, p.Name, string(p.Role), s.refreshTTL)
	if err != nil {
		return security.Token{}, security.Token{}, fmt.Errorf("mint refresh token: %w", err)
	}
	return access, refresh, nil
}

func (s *AuthService) finish(span trace.Span, operation string, err error) {
	outcome := OutcomeSuccess
	switch {
	case errors.Is(err, ErrUnauthorized):
		outcome = OutcomeUnauthorized
	case err != nil:
		outcome = OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	span.End()
	if s.metrics != nil {
		s.metrics.AuthOutcome(operation, outcome)
	}
}

func applyTokens(sess *sessiondomain.Session, access, refresh security.Token) {
	sess.AccessTokenHash = security.HashToken(access.Code)
	sess.AccessIssuedAt = access.IssuedAt
	sess.AccessExpiresAt = access.ExpiresAt
	sess.RefreshTokenHash = security.HashToken(refresh.Code)
	sess.RefreshIssuedAt = refresh.IssuedAt
	sess.RefreshExpiresAt = refresh.ExpiresAt
}
