package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"minha-agenda/backend/internal/app"
	"minha-agenda/backend/internal/audit"
	"minha-agenda/backend/internal/config"
	healthhandler "minha-agenda/backend/internal/health/handler"
	identityhandler "minha-agenda/backend/internal/identity/handler"
	"minha-agenda/backend/internal/logger"
	"minha-agenda/backend/internal/platform/rbac"
	"minha-agenda/backend/internal/policy/engine"
	"minha-agenda/backend/internal/ratelimit"
	"minha-agenda/backend/internal/server"
	"minha-agenda/backend/internal/server/middleware"
	"minha-agenda/backend/internal/telemetry/metrics"
	"minha-agenda/backend/internal/telemetry/otel"
)

const serviceName = "minha-agenda-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	if err := run(cfg, zl); err != nil {
		zl.Error("server exited", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
	_ = zl.Sync()
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, zl)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			zl.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	auditLog := audit.NewLogger(zl, providers.LoggerProvider, nil)

	identity, err := app.OpenIdentity(ctx, cfg, app.IdentityOptions{Log: zl, Audit: auditLog, Metrics: m})
	if err != nil {
		return err
	}
	defer identity.Close()

	policy, err := loadPolicy(ctx, cfg.AuthzPolicyFile)
	if err != nil {
		return err
	}
	if err := policy.HealthCheck(ctx); err != nil {
		return err
	}

	gate := rbac.NewGate(identity.Auth, policy, zl)
	deps := server.Deps{
		Identity:    identityhandler.New(identity.Auth, gate, zl),
		Gate:        gate,
		Metrics:     metrics.Handler(reg),
		Observer:    m,
		Log:         zl,
		TrustProxy:  cfg.RateLimitTrustProxy,
		ServiceName: serviceName,
	}

	var redisPinger healthhandler.Pinger
	if cfg.RateLimitEnabled {
		rl, err := app.OpenRateLimit(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rl.Close() }()

		rules, err := ratelimit.LoadRules(cfg.RateLimitRulesFile, app.DefaultLimits(cfg))
		if err != nil {
			return err
		}
		mode := middleware.FailOpen
		if !cfg.RateLimitFailOpen {
			mode = middleware.FailClosed
		}
		deps.RateLimit = middleware.NewRateLimit(rl.Limiter, rules, mode, cfg.RateLimitTrustProxy).
			WithAudit(auditLog).
			WithMetrics(m).
			WithLogger(zl)
		redisPinger = rl.Limiter
		zl.Info("rate limiting enabled", zap.Bool("fail_open", cfg.RateLimitFailOpen), zap.String("rules_file", cfg.RateLimitRulesFile))
	} else {
		zl.Warn("rate limiting disabled")
	}
	deps.Health = healthhandler.New(identity.Pool, redisPinger, policy, zl)

	srv := server.NewHTTPServer(cfg.HTTPAddr, server.NewRouter(deps))
	errCh := make(chan error, 1)
	go func() {
		zl.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	zl.Info("HTTP server stopped")
	return nil
}

func loadPolicy(ctx context.Context, path string) (*engine.OPAEvaluator, error) {
	if path == "" {
		return engine.NewOPAEvaluator(ctx, "")
	}
	return engine.NewOPAEvaluatorFromFile(ctx, path)
}
