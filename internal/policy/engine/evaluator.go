package engine

import (
	"context"

	principal "minha-agenda/backend/internal/principal/domain"
)

// Evaluator decides whether a role may use an operation guarded by allowed.
type Evaluator interface {
	Allow(ctx context.Context, role principal.Role, allowed []principal.Role) (bool, error)
}
