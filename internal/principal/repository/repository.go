package repository

import (
	"context"
	"errors"

	"minha-agenda/backend/internal/principal/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered in the same class.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository defines persistence for one principal class. Lookups return (nil, nil) when no active row matches.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
	// Create inserts p and assigns the generated id and created_at back onto it.
	Create(ctx context.Context, p *domain.Principal) error
}
