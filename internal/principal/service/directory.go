// Package service routes principal lookups to the client or administrator class by role.
package service

import (
	"context"
	"errors"

	"minha-agenda/backend/internal/principal/domain"
	"minha-agenda/backend/internal/principal/repository"
)

// ErrRegistrationDisabled is returned by Register when the repository for the role is not configured.
var ErrRegistrationDisabled = errors.New("principal class not configured")

// Directory resolves principals across both classes. Callers pass the role they expect and
// never branch on the class themselves.
type Directory struct {
	clients        repository.Repository
	administrators repository.Repository
}

// NewDirectory returns a Directory over the client and administrator repositories.
func NewDirectory(clients, administrators repository.Repository) *Directory {
	return &Directory{clients: clients, administrators: administrators}
}

func (d *Directory) repoFor(role domain.Role) repository.Repository {
	if role.IsAdministrative() {
		return d.administrators
	}
	if role == domain.RoleClient {
		return d.clients
	}
	return nil
}

// FindByEmail returns the active principal with email in role's class, or nil. An administrator whose
// stored role differs from role is treated as absent.
func (d *Directory) FindByEmail(ctx context.Context, email string, role domain.Role) (*domain.Principal, error) {
	repo := d.repoFor(role)
	if repo == nil {
		return nil, nil
	}
	p, err := repo.GetByEmail(ctx, email)
	if err != nil || p == nil {
		return nil, err
	}
	return matchRole(p, role), nil
}

// FindByID returns the active principal with id in role's class, or nil. The stored role must equal role.
func (d *Directory) FindByID(ctx context.Context, id int64, role domain.Role) (*domain.Principal, error) {
	repo := d.repoFor(role)
	if repo == nil || id <= 0 {
		return nil, nil
	}
	p, err := repo.GetByID(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	return matchRole(p, role), nil
}

// Register creates a principal in role's class. passwordHash must already be hashed.
func (d *Directory) Register(ctx context.Context, name, email, passwordHash string, role domain.Role) (*domain.Principal, error) {
	repo := d.repoFor(role)
	if repo == nil {
		if !role.Valid() {
			return nil, domain.ErrUnknownRole
		}
		return nil, ErrRegistrationDisabled
	}
	p := &domain.Principal{Name: name, Email: email, PasswordHash: passwordHash, Role: role}
	if err := repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func matchRole(p *domain.Principal, role domain.Role) *domain.Principal {
	if !p.Active || p.Role != role {
		return nil
	}
	return p
}
