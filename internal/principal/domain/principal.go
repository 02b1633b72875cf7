package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the authorization role carried on a principal and in its tokens.
type Role string

const (
	RoleClient        Role = "cliente"
	RoleEmployee      Role = "funcionario"
	RoleManager       Role = "gerente"
	RoleAdministrator Role = "administrador"
)

// ErrUnknownRole is returned by ParseRole and RoleFromUserType for values outside the role set.
var ErrUnknownRole = errors.New("unknown role")

// AllRoles returns every role, client first.
func AllRoles() []Role {
	return []Role{RoleClient, RoleEmployee, RoleManager, RoleAdministrator}
}

// AdministrativeRoles returns the roles served by the administrators table.
func AdministrativeRoles() []Role {
	return []Role{RoleEmployee, RoleManager, RoleAdministrator}
}

// ParseRole maps a wire value to a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClient, RoleEmployee, RoleManager, RoleAdministrator:
		return r, nil
	}
	return "", ErrUnknownRole
}

// RoleFromUserType maps the plural route segment (clientes, funcionarios, gerentes, administradores) to a Role.
func RoleFromUserType(userType string) (Role, error) {
	switch strings.ToLower(userType) {
	case "clientes":
		return RoleClient, nil
	case "funcionarios":
		return RoleEmployee, nil
	case "gerentes":
		return RoleManager, nil
	case "administradores":
		return RoleAdministrator, nil
	}
	return "", ErrUnknownRole
}

// IsAdministrative reports whether r is one of funcionario, gerente or administrador.
func (r Role) IsAdministrative() bool {
	return r == RoleEmployee || r == RoleManager || r == RoleAdministrator
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// Principal is an authenticated identity of either class. PasswordHash never leaves the service layer.
type Principal struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// View is the principal as exposed to handlers and authorization checks.
type View struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// View strips the credential hash.
func (p *Principal) View() View {
	return View{ID: p.ID, Name: p.Name, Email: p.Email, Role: p.Role}
}

// Validate checks fields required before insert and normalises the email.
func (p *Principal) Validate() error {
	p.Email = NormalizeEmail(p.Email)
	if p.Email == "" {
		return errors.New("email is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if p.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if !p.Role.Valid() {
		return ErrUnknownRole
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email for lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
