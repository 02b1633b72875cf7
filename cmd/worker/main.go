// Worker deactivates expired sessions every SESSION_SWEEP_INTERVAL.
// It needs DATABASE_URL and JWT_SECRET; HTTP_ADDR is read by config but unused.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"minha-agenda/backend/internal/app"
	"minha-agenda/backend/internal/audit"
	"minha-agenda/backend/internal/config"
	"minha-agenda/backend/internal/identity/service"
	"minha-agenda/backend/internal/logger"
	"minha-agenda/backend/internal/telemetry/otel"
)

// sweeper is the part of the auth service the loop drives.
type sweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

var _ sweeper = (*service.AuthService)(nil)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	if err := run(cfg, zl); err != nil {
		zl.Error("worker exited", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
	_ = zl.Sync()
}

// run sweeps until SIGINT or SIGTERM, then closes the pool and flushes telemetry before returning.
func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "minha-agenda-worker",
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, zl)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	identity, err := app.OpenIdentity(ctx, cfg, app.IdentityOptions{
		Log:   zl,
		Audit: audit.NewLogger(zl, providers.LoggerProvider, nil),
	})
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	defer identity.Close()

	interval := cfg.SweepInterval()
	zl.Info("worker: sweeping expired sessions", zap.Duration("interval", interval))
	runLoop(ctx, identity.Auth, interval, zl)
	zl.Info("worker: stopped")
	return nil
}

// runLoop sweeps once immediately, then on every tick until ctx is done.
func runLoop(ctx context.Context, s sweeper, interval time.Duration, zl *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweepOnce(ctx, s, zl)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, s sweeper, zl *zap.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.SweepExpiredSessions(sweepCtx)
	if err != nil {
		if ctx.Err() == nil {
			zl.Error("worker: sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		zl.Info("worker: expired sessions deactivated", zap.Int64("count", n))
	}
}
