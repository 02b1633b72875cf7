package repository

import (
	"context"
	"fmt"

	"minha-agenda/backend/internal/db"
	"minha-agenda/backend/internal/principal/domain"
)

// table maps rows of one principal table, scanned into T, onto domain.Principal.
// Column names passed to getBy are compile-time constants, never caller input.
type table[T any] struct {
	q        db.Querier
	name     string
	columns  string
	toDomain func(*T) *domain.Principal
}

func (t table[T]) getBy(ctx context.Context, column string, value any) (*domain.Principal, error) {
	var row T
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND active", t.columns, t.name, column)
	found, err := db.Get(ctx, t.q, &row, query, value)
	if err != nil {
		return nil, fmt.Errorf("%s: get by %s: %w", t.name, column, err)
	}
	if !found {
		return nil, nil
	}
	return t.toDomain(&row), nil
}

func (t table[T]) insert(ctx context.Context, p *domain.Principal, query string, args ...any) error {
	err := t.q.QueryRow(ctx, query, args...).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("%s: insert: %w", t.name, err)
	}
	return nil
}
