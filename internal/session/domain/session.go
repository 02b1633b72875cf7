package domain

import (
	"time"

	principal "minha-agenda/backend/internal/principal/domain"
)

// Session is one continuous login. Refresh rewrites the token columns of the same row; login always inserts.
// Revoked is terminal. Active is cleared by the sweep once both tokens have expired.
type Session struct {
	ID               int64
	PrincipalID      int64
	PrincipalRole    principal.Role
	AccessTokenHash  string
	AccessIssuedAt   time.Time
	AccessExpiresAt  time.Time
	RefreshTokenHash string
	RefreshIssuedAt  time.Time
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
	UpdatedAt        *time.Time // nil until the first refresh or revoke
	Revoked          bool
	Active           bool
}

// Usable reports whether the session can still authenticate requests with its access token at t.
func (s *Session) Usable(at time.Time) bool {
	return s.Active && !s.Revoked && s.AccessExpiresAt.After(at)
}

// Refreshable reports whether the session's refresh token is still accepted at t.
func (s *Session) Refreshable(at time.Time) bool {
	return s.Active && !s.Revoked && s.RefreshExpiresAt.After(at)
}

// Expired reports whether both tokens are past expiry at t, making the row eligible for the sweep.
func (s *Session) Expired(at time.Time) bool {
	return !s.AccessExpiresAt.After(at) && !s.RefreshExpiresAt.After(at)
}
