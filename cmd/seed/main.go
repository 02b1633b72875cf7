// seed inserts development principals for local testing: one client and one principal per administrative role.
// Idempotent: principals whose email is already registered are skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"minha-agenda/backend/internal/config"
	"minha-agenda/backend/internal/db"
	principal "minha-agenda/backend/internal/principal/domain"
	principalrepo "minha-agenda/backend/internal/principal/repository"
	principalservice "minha-agenda/backend/internal/principal/service"
	"minha-agenda/backend/internal/security"
)

const devPassword = "senha1234"

type devPrincipal struct {
	name  string
	email string
	role  principal.Role
}

var devPrincipals = []devPrincipal{
	{"Cliente Dev", "cliente@example.com", principal.RoleClient},
	{"Funcionario Dev", "funcionario@example.com", principal.RoleEmployee},
	{"Gerente Dev", "gerente@example.com", principal.RoleManager},
	{"Administrador Dev", "admin@example.com", principal.RoleAdministrator},
}

// registrar is the part of the directory seed needs.
type registrar interface {
	Register(ctx context.Context, name, email, passwordHash string, role principal.Role) (*principal.Principal, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; set it in the environment or in .env")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	dir := principalservice.NewDirectory(
		principalrepo.NewClientRepository(pool),
		principalrepo.NewAdministratorRepository(pool),
	)
	hash, err := security.NewPasswordHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	created, err := seed(ctx, dir, hash)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("Seed completed: %d created, %d already present.", created, len(devPrincipals)-created)
	for _, p := range devPrincipals {
		fmt.Printf("%-13s login: %s / %s\n", p.role, p.email, devPassword)
	}
}

// seed registers every dev principal and returns how many were new.
func seed(ctx context.Context, r registrar, passwordHash string) (int, error) {
	created := 0
	for _, p := range devPrincipals {
		_, err := r.Register(ctx, p.name, p.email, passwordHash, p.role)
		switch {
		case err == nil:
			created++
		case errors.Is(err, principalrepo.ErrDuplicateEmail):
		default:
			return created, fmt.Errorf("register %s: %w", p.email, err)
		}
	}
	return created, nil
}
