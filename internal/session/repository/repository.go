package repository

import (
	"context"
	"errors"
	"time"

	principal "minha-agenda/backend/internal/principal/domain"
	"minha-agenda/backend/internal/session/domain"
)

// ErrNotFound is returned by Renew when no active, non-revoked row still carries the previous refresh hash.
var ErrNotFound = errors.New("session not found")

// ErrUnknownPrincipal is returned by Create when no principal with the session's id exists in the table of its role.
var ErrUnknownPrincipal = errors.New("unknown principal")

// Repository defines persistence for sessions. Lookups return (nil, nil) when nothing matches.
type Repository interface {
	// Create inserts s and assigns the generated id and created_at back onto it. It fails with
	// ErrUnknownPrincipal when the principal does not exist.
	Create(ctx context.Context, s *domain.Session) error
	// Renew overwrites the token columns of s.ID only if its refresh hash is still previousRefreshHash,
	// the row is active and not revoked, and the refresh token has not expired at s.RefreshIssuedAt.
	Renew(ctx context.Context, s *domain.Session, previousRefreshHash string) error
	FindByRefreshTokenHash(ctx context.Context, hash string, at time.Time) (*domain.Session, error)
	FindByAccessTokenHash(ctx context.Context, hash string, at time.Time) (*domain.Session, error)
	// Revoke marks the session revoked. Revoking an already revoked or unknown id is a no-op.
	Revoke(ctx context.Context, id int64, at time.Time) error
	// RevokeAllForPrincipal revokes every non-revoked session of the principal and returns how many changed.
	RevokeAllForPrincipal(ctx context.Context, principalID int64, role principal.Role, at time.Time) (int64, error)
	// ListActive returns sessions of the principal whose refresh token is still live at at, newest first.
	ListActive(ctx context.Context, principalID int64, role principal.Role, at time.Time) ([]*domain.Session, error)
	// SweepExpired deactivates active rows whose access and refresh tokens both expired before at.
	SweepExpired(ctx context.Context, at time.Time) (int64, error)
}
