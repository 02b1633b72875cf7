// Package handler exposes the identity service over HTTP: login, refresh, logout and the "me" endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"minha-agenda/backend/internal/identity/service"
	"minha-agenda/backend/internal/platform/rbac"
	"minha-agenda/backend/internal/platform/respond"
	principal "minha-agenda/backend/internal/principal/domain"
	"minha-agenda/backend/internal/security"
)

// Password length bounds accepted at login.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 20
)

const maxBodyBytes = 1 << 20

// AuthAPI is the subset of service.AuthService used by the handler.
type AuthAPI interface {
	Login(ctx context.Context, email, password string, role principal.Role) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshCode string) (*service.TokenPair, error)
	Logout(ctx context.Context, accessCode string) error
	LogoutEverywhere(ctx context.Context, accessCode string) (int64, error)
	ListSessions(ctx context.Context, p principal.View, currentSessionID int64) ([]service.SessionInfo, error)
}

// Handler serves the identity routes.
type Handler struct {
	auth AuthAPI
	gate *rbac.Gate
	log  *zap.Logger
}

// New returns a Handler. A nil logger is replaced by a no-op.
func New(auth AuthAPI, gate *rbac.Gate, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{auth: auth, gate: gate, log: log}
}

// Routes mounts the identity endpoints on r, which is expected to be the /api subrouter.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/{userType}/login", h.Login)
	r.Post("/{userType}/refresh", h.Refresh)
	r.Post("/{userType}/logout", h.Logout)
	r.With(h.gate.Require()).Post("/{userType}/logout-all", h.LogoutAll)

	r.With(h.gate.Require()).Get("/me", h.Me)
	r.With(h.gate.Require()).Get("/me/sessions", h.Sessions)
	r.With(h.gate.RequireAdministrative()).Get("/admin/ping", h.AdminPing)
}

type tokenJSON struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	ExpiresIn int64     `json:"expiresIn"`
}

func toTokenJSON(t security.Token) tokenJSON {
	return tokenJSON{Token: t.Code, IssuedAt: t.IssuedAt, ExpiresAt: t.ExpiresAt, ExpiresIn: t.ExpiresIn()}
}

func pairFields(p *service.TokenPair) respond.Fields {
	return respond.Fields{
		"accessToken":  toTokenJSON(p.Access),
		"refreshToken": toTokenJSON(p.Refresh),
		"tokenType":    "Bearer",
		"usuario":      p.Principal,
	}
}

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// roleParam resolves {userType}; writes a 422 and returns false when it is not a known user type.
func roleParam(w http.ResponseWriter, r *http.Request) (principal.Role, bool) {
	role, err := principal.RoleFromUserType(chi.URLParam(r, "userType"))
	if err != nil {
		respond.Validation(w, map[string]string{"tipoUsuario": "Tipo de usuário inválido"})
		return "", false
	}
	return role, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, "corpo da requisição inválido")
		return false
	}
	return true
}

func validateLogin(req loginRequest) map[string]string {
	errs := make(map[string]string)
	switch email := strings.TrimSpace(req.Email); {
	case email == "":
		errs["email"] = "O campo email é obrigatório"
	default:
		if a, err := mail.ParseAddress(email); err != nil || a.Address != email {
			errs["email"] = "O campo email deve ser um email válido"
		}
	}
	switch n := utf8.RuneCountInString(req.Senha); {
	case n == 0:
		errs["senha"] = "O campo senha é obrigatório"
	case n < MinPasswordLength:
		errs["senha"] = "O campo senha deve ter no mínimo 8 caracteres"
	case n > MaxPasswordLength:
		errs["senha"] = "O campo senha deve ter no máximo 20 caracteres"
	}
	return errs
}

// Login handles POST /api/{userType}/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	role, ok := roleParam(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validateLogin(req); len(errs) > 0 {
		respond.Validation(w, errs)
		return
	}
	pair, err := h.auth.Login(r.Context(), strings.TrimSpace(req.Email), req.Senha, role)
	if err != nil {
		h.authError(w, err, "credenciais inválidas")
		return
	}
	respond.OK(w, "Login realizado com sucesso.", pairFields(pair))
}

// Refresh handles POST /api/{userType}/refresh. The old refresh token stops working once this succeeds.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	role, ok := roleParam(w, r)
	if !ok {
		return
	}
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		respond.Validation(w, map[string]string{"refreshToken": "O campo refreshToken é obrigatório"})
		return
	}
	pair, err := h.auth.Refresh(r.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		h.authError(w, err, "refresh token inválido ou expirado")
		return
	}
	msg := "Token de administrador renovado com sucesso."
	if role == principal.RoleClient {
		msg = "Token de cliente renovado com sucesso."
	}
	respond.OK(w, msg, pairFields(pair))
}

// Logout handles POST /api/{userType}/logout. A stale or unknown token still gets 200.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	role, ok := roleParam(w, r)
	if !ok {
		return
	}
	code, err := rbac.ExtractBearer(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="minha-agenda"`)
		respond.Error(w, http.StatusUnauthorized, "token inválido ou ausente")
		return
	}
	if err := h.auth.Logout(r.Context(), code); err != nil {
		h.authError(w, err, "token inválido ou ausente")
		return
	}
	msg := "Administrador deslogado com sucesso."
	if role == principal.RoleClient {
		msg = "Cliente deslogado com sucesso."
	}
	respond.OK(w, msg, nil)
}

// LogoutAll handles POST /api/{userType}/logout-all and revokes every open session of the caller.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if _, ok := roleParam(w, r); !ok {
		return
	}
	n, err := h.auth.LogoutEverywhere(r.Context(), rbac.AccessTokenFromContext(r.Context()))
	if err != nil {
		h.authError(w, err, "token inválido ou ausente")
		return
	}
	respond.OK(w, "Todas as sessões foram encerradas.", respond.Fields{"sessoesEncerradas": n})
}

// Me handles GET /api/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, "", respond.Fields{"usuario": rbac.PrincipalFromContext(r.Context())})
}

// Sessions handles GET /api/me/sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	id := rbac.IdentityFromContext(r.Context())
	sessions, err := h.auth.ListSessions(r.Context(), id.Principal, id.SessionID)
	if err != nil {
		h.authError(w, err, "")
		return
	}
	if sessions == nil {
		sessions = []service.SessionInfo{}
	}
	respond.OK(w, "", respond.Fields{"sessoes": sessions})
}

// AdminPing handles GET /api/admin/ping for funcionario, gerente and administrador.
func (h *Handler) AdminPing(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, "pong", respond.Fields{"usuario": rbac.PrincipalFromContext(r.Context())})
}

func (h *Handler) authError(w http.ResponseWriter, err error, unauthorizedMsg string) {
	if errors.Is(err, service.ErrUnauthorized) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="minha-agenda"`)
		respond.Error(w, http.StatusUnauthorized, unauthorizedMsg)
		return
	}
	h.log.Error("identity handler failed", zap.Error(err))
	respond.Error(w, http.StatusInternalServerError, "erro interno")
}
