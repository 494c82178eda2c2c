package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/infra/postgres"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/infra/redis"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/platform/user"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi/handler"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi/middleware"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/config"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"

	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("production").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.NewDefault(cfg.Env)
	log.Info("starting ledger api", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	var cache ledger.Cache
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The cache is an optimization. Run without it rather than refuse
		// to start.
		log.WithError(err).Warn("redis unavailable, stats caching disabled")
	} else {
		cache = redis.NewCache(redisClient, log)
	}

	userRepo := postgres.NewUserRepository(db.Pool)
	userSvc := user.NewService(userRepo, log)

	systemID, err := userSvc.EnsureSystemUser(ctx)
	if err != nil {
		log.Error("system user bootstrap failed", "error", err)
		os.Exit(1)
	}

	ledgerRepo := postgres.NewLedgerRepository(db.Pool)
	router := ledger.NewSystemRouter(ledgerRepo, systemID)

	limits := money.DefaultLimits()
	if maxUnits, err := decimal.NewFromString(cfg.AmountMaxUnits); err == nil {
		limits.MaxUnits = maxUnits
	}
	limits.Scale = int32(cfg.AmountScale)

	svc := ledger.NewService(ledgerRepo, router, cache, ledger.Config{
		MaxRetries:     cfg.MaxRetries,
		BaseBackoff:    cfg.BaseBackoff,
		SweepStaleness: cfg.SweepStaleness,
		StatsCacheTTL:  redis.DefaultTTL,
		Limits:         limits,
	}, log)

	go svc.RunSweeper(ctx, cfg.SweepInterval)

	jwtSvc := middleware.NewJWTService(cfg.JWTSecret)

	apiHandler := httpapi.NewRouter(httpapi.Config{
		Logger:             log,
		AuthHandler:        handler.NewAuthHandler(userSvc, jwtSvc, log),
		AccountHandler:     handler.NewAccountHandler(svc, log),
		TransactionHandler: handler.NewTransactionHandler(svc, log),
		HealthHandler: handler.NewHealthHandler(map[string]handler.CheckFunc{
			"postgres": db.Health,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}, log),
		JWTMiddleware:  middleware.JWTMiddleware(jwtSvc),
		AllowedOrigins: []string{"*"},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      apiHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
