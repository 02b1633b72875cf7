package repository

import (
	"context"
	"time"

	"minha-agenda/backend/internal/db"
	"minha-agenda/backend/internal/principal/domain"
)

type clientRow struct {
	ID           int64      `db:"id"`
	Name         string     `db:"name"`
	Email        string     `db:"email"`
	PasswordHash string     `db:"password_hash"`
	Active       bool       `db:"active"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at"`
}

type administratorRow struct {
	clientRow
	Role string `db:"role"`
}

const principalColumns = "id, name, email, password_hash, active, created_at, updated_at"

// ClientRepository persists principals of role cliente in the clients table.
type ClientRepository struct {
	t table[clientRow]
}

// NewClientRepository returns a client repository backed by q.
func NewClientRepository(q db.Querier) *ClientRepository {
	return &ClientRepository{t: table[clientRow]{
		q:       q,
		name:    "clients",
		columns: principalColumns,
		toDomain: func(r *clientRow) *domain.Principal {
			return r.toDomain(domain.RoleClient)
		},
	}}
}

// GetByID returns the active client with id, or nil if not found.
func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*domain.Principal, error) {
	return r.t.getBy(ctx, "id", id)
}

// GetByEmail returns the active client with the given email, or nil if not found.
func (r *ClientRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.t.getBy(ctx, "email", domain.NormalizeEmail(email))
}

// Create inserts a client. p.Role is forced to cliente.
func (r *ClientRepository) Create(ctx context.Context, p *domain.Principal) error {
	p.Role = domain.RoleClient
	if err := p.Validate(); err != nil {
		return err
	}
	p.Active = true
	return r.t.insert(ctx, p,
		`INSERT INTO clients (name, email, password_hash, active) VALUES ($1, $2, $3, TRUE) RETURNING id, created_at`,
		p.Name, p.Email, p.PasswordHash)
}

// AdministratorRepository persists principals with administrative roles in the administrators table.
type AdministratorRepository struct {
	t table[administratorRow]
}

// NewAdministratorRepository returns an administrator repository backed by q.
func NewAdministratorRepository(q db.Querier) *AdministratorRepository {
	return &AdministratorRepository{t: table[administratorRow]{
		q:       q,
		name:    "administrators",
		columns: principalColumns + ", role",
		toDomain: func(r *administratorRow) *domain.Principal {
			return r.clientRow.toDomain(domain.Role(r.Role))
		},
	}}
}

// GetByID returns the active administrator with id, or nil if not found.
func (r *AdministratorRepository) GetByID(ctx context.Context, id int64) (*domain.Principal, error) {
	return r.t.getBy(ctx, "id", id)
}

// GetByEmail returns the active administrator with the given email, or nil if not found.
func (r *AdministratorRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.t.getBy(ctx, "email", domain.NormalizeEmail(email))
}

// Create inserts an administrator. p.Role must be administrative.
func (r *AdministratorRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.Role.IsAdministrative() {
		return domain.ErrUnknownRole
	}
	p.Active = true
	return r.t.insert(ctx, p,
		`INSERT INTO administrators (name, email, password_hash, role, active) VALUES ($1, $2, $3, $4, TRUE) RETURNING id, created_at`,
		p.Name, p.Email, p.PasswordHash, string(p.Role))
}

func (r *clientRow) toDomain(role domain.Role) *domain.Principal {
	return &domain.Principal{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         role,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
