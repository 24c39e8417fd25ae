package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/api"
	"github.com/Hoang7604119/mmostore-sub003/internal/api/middleware"
	"github.com/Hoang7604119/mmostore-sub003/internal/config"
	"github.com/Hoang7604119/mmostore-sub003/internal/db"
	"github.com/Hoang7604119/mmostore-sub003/internal/gateway"
	"github.com/Hoang7604119/mmostore-sub003/internal/idempotency"
	"github.com/Hoang7604119/mmostore-sub003/internal/notify"
	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"github.com/Hoang7604119/mmostore-sub003/internal/repository"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"github.com/Hoang7604119/mmostore-sub003/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the ledger HTTP server and background workers, blocking
// until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewPostgresStore(pool)
	idemStore := idempotency.NewStore(redisClient, store, cfg.IdempotencyTTL)
	events := notify.NewRedisPublisher(redisClient)

	gw := gateway.NewRetryingGateway(gateway.NewMockGateway(), gateway.RetryConfig{
		Attempts:  cfg.GatewayRetryAttempts,
		BaseDelay: cfg.GatewayRetryBaseDelay,
	})

	holdSvc := service.NewHoldService(store, events, cfg.HoldDurationDays)
	releaseWorker := worker.NewReleaseWorker(holdSvc).
		WithInterval(cfg.ReleaseSweepInterval).
		WithBatchSize(cfg.ReleaseBatchSize)

	svcs := api.Services{
		Balances:    service.NewBalanceService(store, events),
		Holds:       holdSvc,
		Topups:      service.NewTopupService(store, gw, events),
		Withdrawals: service.NewWithdrawalService(store, events, service.WithdrawalBounds{Min: cfg.WithdrawMin, Max: cfg.WithdrawMax}),
		Settlement:  service.NewSettlementService(store, holdSvc, events),
		Sweeper:     releaseWorker,
	}

	stopRelease := releaseWorker.Run(ctx)
	logger.Info("release worker started",
		zap.Duration("interval", cfg.ReleaseSweepInterval),
		zap.Int32("batch", cfg.ReleaseBatchSize),
	)

	reconWorker := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	stopRecon := reconWorker.Run(ctx)

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, svcs)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopRelease()
	stopRecon()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
