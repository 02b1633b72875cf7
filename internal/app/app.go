// Package app wires the identity and rate limit stacks shared by cmd/server, cmd/worker and cmd/agendactl.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"minha-agenda/backend/internal/audit"
	"minha-agenda/backend/internal/config"
	"minha-agenda/backend/internal/db"
	"minha-agenda/backend/internal/identity/service"
	principalrepo "minha-agenda/backend/internal/principal/repository"
	principalservice "minha-agenda/backend/internal/principal/service"
	"minha-agenda/backend/internal/ratelimit"
	"minha-agenda/backend/internal/security"
	sessionrepo "minha-agenda/backend/internal/session/repository"
)

// Identity holds the Postgres-backed identity stack.
type Identity struct {
	Pool      *pgxpool.Pool
	Directory *principalservice.Directory
	Sessions  *sessionrepo.PostgresRepository
	Hasher    *security.PasswordHasher
	Tokens    *security.TokenCodec
	Auth      *service.AuthService
}

// IdentityOptions are the optional collaborators of the auth service.
type IdentityOptions struct {
	Log     *zap.Logger
	Audit   audit.AuditLogger
	Metrics service.Recorder
}

// OpenIdentity connects to Postgres and builds the auth service. cfg must pass ValidateAuth.
func OpenIdentity(ctx context.Context, cfg *config.Config, opts IdentityOptions) (*Identity, error) {
	if err := cfg.ValidateAuth(); err != nil {
		return nil, err
	}
	tokens, err := security.NewTokenCodec([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	id := &Identity{
		Pool: pool,
		Directory: principalservice.NewDirectory(
			principalrepo.NewClientRepository(pool),
			principalrepo.NewAdministratorRepository(pool),
		),
		Sessions: sessionrepo.NewPostgresRepository(pool),
		Hasher:   security.NewPasswordHasher(cfg.BcryptCost),
		Tokens:   tokens,
	}
	auth := service.NewAuthService(id.Directory, id.Sessions, id.Hasher, tokens, cfg.AccessTTL(), cfg.RefreshTTL())
	if opts.Log != nil {
		auth = auth.WithLogger(opts.Log)
	}
	if opts.Audit != nil {
		auth = auth.WithAudit(opts.Audit)
	}
	if opts.Metrics != nil {
		auth = auth.WithMetrics(opts.Metrics)
	}
	id.Auth = auth
	return id, nil
}

// Close releases the pool.
func (i *Identity) Close() {
	if i != nil && i.Pool != nil {
		i.Pool.Close()
	}
}

// RateLimit holds the Redis-backed limiter and its client.
type RateLimit struct {
	Client  *redis.Client
	Limiter *ratelimit.Limiter
}

// OpenRateLimit connects to REDIS_URL. The connection is checked with a ping.
func OpenRateLimit(ctx context.Context, cfg *config.Config) (*RateLimit, error) {
	client, err := ratelimit.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	store, err := ratelimit.NewRedisStore(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	limiter, err := ratelimit.NewLimiter(store)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := limiter.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return &RateLimit{Client: client, Limiter: limiter}, nil
}

// Close closes the Redis client.
func (r *RateLimit) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// DefaultLimits returns the configured limits for endpoints without a rule.
func DefaultLimits(cfg *config.Config) ratelimit.Limits {
	return ratelimit.Limits{
		PerMinute: int64(cfg.RateLimitPerMinute),
		PerHour:   int64(cfg.RateLimitPerHour),
		PerDay:    int64(cfg.RateLimitPerDay),
	}
}
