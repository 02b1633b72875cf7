package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"minha-agenda/backend/internal/db"
	principal "minha-agenda/backend/internal/principal/domain"
	"minha-agenda/backend/internal/session/domain"
)

const sessionColumns = `id, principal_id, principal_role,
	access_token_hash, access_issued_at, access_expires_at,
	refresh_token_hash, refresh_issued_at, refresh_expires_at,
	created_at, updated_at, revoked, active`

type sessionRow struct {
	ID               int64      `db:"id"`
	PrincipalID      int64      `db:"principal_id"`
	PrincipalRole    string     `db:"principal_role"`
	AccessTokenHash  string     `db:"access_token_hash"`
	AccessIssuedAt   time.Time  `db:"access_issued_at"`
	AccessExpiresAt  time.Time  `db:"access_expires_at"`
	RefreshTokenHash string     `db:"refresh_token_hash"`
	RefreshIssuedAt  time.Time  `db:"refresh_issued_at"`
	RefreshExpiresAt time.Time  `db:"refresh_expires_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at"`
	Revoked          bool       `db:"revoked"`
	Active           bool       `db:"active"`
}

// PostgresRepository implements Repository over the sessions table.
type PostgresRepository struct {
	q db.Querier
}

// NewPostgresRepository returns a session repository that uses q for persistence.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{q: q}
}

// Create inserts the session with revoked=false and active=true. The insert only happens when the principal
// exists in the table of its class; otherwise it returns ErrUnknownPrincipal.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, db.DefaultTimeout)
	defer cancel()
	err := r.q.QueryRow(ctx, `
		INSERT INTO sessions (principal_id, principal_role,
			access_token_hash, access_issued_at, access_expires_at,
			refresh_token_hash, refresh_issued_at, refresh_expires_at,
			revoked, active)
		SELECT $1::bigint, $2::text, $3::text, $4::timestamptz, $5::timestamptz,
			$6::text, $7::timestamptz, $8::timestamptz, FALSE, TRUE
		WHERE EXISTS (
			SELECT 1 FROM clients WHERE id = $1::bigint AND $2::text = 'cliente'
			UNION ALL
			SELECT 1 FROM administrators WHERE id = $1::bigint AND role = $2::text
		)
		RETURNING id, created_at`,
		s.PrincipalID, string(s.PrincipalRole),
		s.AccessTokenHash, s.AccessIssuedAt, s.AccessExpiresAt,
		s.RefreshTokenHash, s.RefreshIssuedAt, s.RefreshExpiresAt,
	).Scan(&s.ID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("sessions: create for %s %d: %w", s.PrincipalRole, s.PrincipalID, ErrUnknownPrincipal)
	}
	if err != nil {
		return fmt.Errorf("sessions: create for principal %d: %w", s.PrincipalID, err)
	}
	s.Revoked = false
	s.Active = true
	return nil
}

// Renew is a compare-and-swap on the refresh hash: of two concurrent refreshes with the same token only one
// updates the row, the other gets ErrNotFound.
func (r *PostgresRepository) Renew(ctx context.Context, s *domain.Session, previousRefreshHash string) error {
	var updatedAt time.Time
	found, err := db.Get(ctx, r.q, &updatedAt, `
		UPDATE sessions SET
			access_token_hash = $2, access_issued_at = $3, access_expires_at = $4,
			refresh_token_hash = $5, refresh_issued_at = $6, refresh_expires_at = $7,
			updated_at = $3
		WHERE id = $1 AND refresh_token_hash = $8
			AND NOT revoked AND active AND refresh_expires_at > $3
		RETURNING updated_at`,
		s.ID,
		s.AccessTokenHash, s.AccessIssuedAt, s.AccessExpiresAt,
		s.RefreshTokenHash, s.RefreshIssuedAt, s.RefreshExpiresAt,
		previousRefreshHash,
	)
	if err != nil {
		return fmt.Errorf("sessions: renew %d: %w", s.ID, err)
	}
	if !found {
		return ErrNotFound
	}
	s.UpdatedAt = &updatedAt
	return nil
}

// FindByRefreshTokenHash returns the live session whose refresh hash is hash, or nil.
func (r *PostgresRepository) FindByRefreshTokenHash(ctx context.Context, hash string, at time.Time) (*domain.Session, error) {
	return r.findOne(ctx, "refresh", `refresh_token_hash = $1 AND refresh_expires_at > $2`, hash, at)
}

// FindByAccessTokenHash returns the live session whose access hash is hash, or nil.
func (r *PostgresRepository) FindByAccessTokenHash(ctx context.Context, hash string, at time.Time) (*domain.Session, error) {
	return r.findOne(ctx, "access", `access_token_hash = $1 AND access_expires_at > $2`, hash, at)
}

func (r *PostgresRepository) findOne(ctx context.Context, kind, where string, args ...any) (*domain.Session, error) {
	var row sessionRow
	found, err := db.Get(ctx, r.q, &row,
		`SELECT `+sessionColumns+` FROM sessions WHERE `+where+` AND NOT revoked AND active`, args...)
	if err != nil {
		return nil, fmt.Errorf("sessions: find by %s token: %w", kind, err)
	}
	if !found {
		return nil, nil
	}
	return row.toDomain(), nil
}

// Revoke sets revoked and updated_at. Already revoked rows keep their original updated_at.
func (r *PostgresRepository) Revoke(ctx context.Context, id int64, at time.Time) error {
	if _, err := db.Exec(ctx, r.q, `UPDATE sessions SET revoked = TRUE, updated_at = $2 WHERE id = $1 AND NOT revoked`, id, at); err != nil {
		return fmt.Errorf("sessions: revoke %d: %w", id, err)
	}
	return nil
}

// RevokeAllForPrincipal revokes every open session of the principal.
func (r *PostgresRepository) RevokeAllForPrincipal(ctx context.Context, principalID int64, role principal.Role, at time.Time) (int64, error) {
	tag, err := db.Exec(ctx, r.q, `
		UPDATE sessions SET revoked = TRUE, updated_at = $3
		WHERE principal_id = $1 AND principal_role = $2 AND NOT revoked`,
		principalID, string(role), at)
	if err != nil {
		return 0, fmt.Errorf("sessions: revoke all for %s %d: %w", role, principalID, err)
	}
	return tag.RowsAffected(), nil
}

// ListActive returns the principal's sessions that can still be refreshed, newest first.
func (r *PostgresRepository) ListActive(ctx context.Context, principalID int64, role principal.Role, at time.Time) ([]*domain.Session, error) {
	var rows []sessionRow
	err := db.Select(ctx, r.q, &rows, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE principal_id = $1 AND principal_role = $2 AND NOT revoked AND active AND refresh_expires_at > $3
		ORDER BY created_at DESC, id DESC`,
		principalID, string(role), at)
	if err != nil {
		return nil, fmt.Errorf("sessions: list for %s %d: %w", role, principalID, err)
	}
	out := make([]*domain.Session, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// SweepExpired deactivates rows whose tokens both expired. Rows are never deleted.
func (r *PostgresRepository) SweepExpired(ctx context.Context, at time.Time) (int64, error) {
	tag, err := db.Exec(ctx, r.q, `
		UPDATE sessions SET active = FALSE, updated_at = $1
		WHERE active AND access_expires_at <= $1 AND refresh_expires_at <= $1`, at)
	if err != nil {
		return 0, fmt.Errorf("sessions: sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (row *sessionRow) toDomain() *domain.Session {
	return &domain.Session{
		ID:               row.ID,
		PrincipalID:      row.PrincipalID,
		PrincipalRole:    principal.Role(row.PrincipalRole),
		AccessTokenHash:  row.AccessTokenHash,
		AccessIssuedAt:   row.AccessIssuedAt,
		AccessExpiresAt:  row.AccessExpiresAt,
		RefreshTokenHash: row.RefreshTokenHash,
		RefreshIssuedAt:  row.RefreshIssuedAt,
		RefreshExpiresAt: row.RefreshExpiresAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		Revoked:          row.Revoked,
		Active:           row.Active,
	}
}
