package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"

	principal "minha-agenda/backend/internal/principal/domain"
)

const defaultPolicyQuery = "data.agenda.authz.allow"

// DefaultPolicy allows a role listed in allowed_roles. An empty allowed_roles list allows any known role.
const DefaultPolicy = `package agenda.authz

known_roles := {"cliente", "funcionario", "gerente", "administrador"}

administrative_roles := {"funcionario", "gerente", "administrador"}

default allow := false

allow if {
	input.role in known_roles
	count(input.allowed_roles) == 0
}

allow if {
	input.role in known_roles
	input.role in input.allowed_roles
}

administrative if input.role in administrative_roles
`

// OPAEvaluator evaluates role policy with a Rego query prepared once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module (DefaultPolicy when empty). The module must define data.agenda.authz.allow.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultPolicy
	}
	pq, err := rego.New(
		rego.Query(defaultPolicyQuery),
		rego.Module("authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// NewOPAEvaluatorFromFile reads a Rego module from path. An empty path uses DefaultPolicy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// Allow evaluates the policy for role against allowed. Undefined results deny.
func (e *OPAEvaluator) Allow(ctx context.Context, role principal.Role, allowed []principal.Role) (bool, error) {
	roles := make([]string, len(allowed))
	for i, r := range allowed {
		roles[i] = string(r)
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"role":          string(role),
		"allowed_roles": roles,
	}))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck evaluates the prepared query against an administrator input. Does not touch any store.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	ok, err := e.Allow(ctx, principal.RoleAdministrator, principal.AdministrativeRoles())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("policy denied administrator on administrative roles")
	}
	return nil
}
