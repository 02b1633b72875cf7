// Package rbac authenticates bearer tokens and gates handlers by role.
package rbac

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"minha-agenda/backend/internal/identity/service"
	"minha-agenda/backend/internal/platform/respond"
	"minha-agenda/backend/internal/policy/engine"
	principal "minha-agenda/backend/internal/principal/domain"
)

var (
	// ErrUnauthorized means no valid bearer token was presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the token is valid but its role is not allowed.
	ErrForbidden = errors.New("forbidden")
)

// Authenticator resolves an access token. (nil, nil) means the token is not valid.
type Authenticator interface {
	Authenticate(ctx context.Context, accessCode string) (*service.Identity, error)
}

type ctxKey int

const (
	identityKey ctxKey = iota
	tokenKey
)

// WithIdentity attaches an authenticated identity and its raw access token to ctx.
func WithIdentity(ctx context.Context, id *service.Identity, accessCode string) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, tokenKey, accessCode)
}

// IdentityFromContext returns the identity set by the gate, or nil.
func IdentityFromContext(ctx context.Context) *service.Identity {
	id, _ := ctx.Value(identityKey).(*service.Identity)
	return id
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *principal.View {
	if id := IdentityFromContext(ctx); id != nil {
		return &id.Principal
	}
	return nil
}

// AccessTokenFromContext returns the raw bearer token the identity was resolved from.
func AccessTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey).(string)
	return s
}

// ExtractBearer returns the token from "Authorization: Bearer <token>". The scheme is case-insensitive.
func ExtractBearer(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrUnauthorized
	}
	return token, nil
}

// Gate authenticates requests and checks roles through the policy evaluator.
type Gate struct {
	auth   Authenticator
	policy engine.Evaluator
	log    *zap.Logger
}

// NewGate returns a Gate. A nil logger is replaced by a no-op.
func NewGate(auth Authenticator, policy engine.Evaluator, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{auth: auth, policy: policy, log: log}
}

// Authenticate resolves the bearer token of r. Returns ErrUnauthorized for a missing or invalid token;
// any other error is a storage failure.
func (g *Gate) Authenticate(r *http.Request) (*service.Identity, string, error) {
	code, err := ExtractBearer(r)
	if err != nil {
		return nil, "", err
	}
	id, err := g.auth.Authenticate(r.Context(), code)
	if err != nil {
		return nil, "", err
	}
	if id == nil {
		return nil, "", ErrUnauthorized
	}
	return id, code, nil
}

// Authorize authenticates r and requires its role to be in allowed (any role when allowed is empty).
// On success it returns r with the identity attached to its context.
func (g *Gate) Authorize(r *http.Request, allowed ...principal.Role) (*http.Request, error) {
	id := IdentityFromContext(r.Context())
	if id == nil {
		var (
			code string
			err  error
		)
		id, code, err = g.Authenticate(r)
		if err != nil {
			return r, err
		}
		r = r.WithContext(WithIdentity(r.Context(), id, code))
	}
	ok, err := g.policy.Allow(r.Context(), id.Principal.Role, allowed)
	if err != nil {
		return r, err
	}
	if !ok {
		return r, ErrForbidden
	}
	return r, nil
}

// Optional attaches the identity when a valid bearer token is present and otherwise passes the request
// through untouched. Used ahead of the rate limiter so authenticated callers are counted per principal.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, code, err := g.Authenticate(r)
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				g.log.Warn("optional auth: token lookup failed", zap.Error(err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id, code)))
	})
}

// Require returns middleware that rejects with 401 or 403 unless the caller's role is in allowed.
func (g *Gate) Require(allowed ...principal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, err := g.Authorize(r, allowed...)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUnauthorized):
				w.Header().Set("WWW-Authenticate", `Bearer realm="minha-agenda"`)
				respond.Error(w, http.StatusUnauthorized, "token inválido ou ausente")
			case errors.Is(err, ErrForbidden):
				respond.Error(w, http.StatusForbidden, "acesso negado para este perfil")
			default:
				g.log.Error("authorize failed", zap.Error(err))
				respond.Error(w, http.StatusInternalServerError, "erro interno")
			}
		})
	}
}

// RequireAdministrative is Require for funcionario, gerente and administrador.
func (g *Gate) RequireAdministrative() func(http.Handler) http.Handler {
	return g.Require(principal.AdministrativeRoles()...)
}
