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

	"github.com/ayo6706/interbank-transfers/internal/api"
	"github.com/ayo6706/interbank-transfers/internal/api/middleware"
	"github.com/ayo6706/interbank-transfers/internal/config"
	"github.com/ayo6706/interbank-transfers/internal/db"
	"github.com/ayo6706/interbank-transfers/internal/fieldcrypt"
	"github.com/ayo6706/interbank-transfers/internal/gateway"
	"github.com/ayo6706/interbank-transfers/internal/idempotency"
	"github.com/ayo6706/interbank-transfers/internal/notify"
	"github.com/ayo6706/interbank-transfers/internal/observability"
	"github.com/ayo6706/interbank-transfers/internal/repository"
	"github.com/ayo6706/interbank-transfers/internal/service"
	"github.com/ayo6706/interbank-transfers/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server, notification hub and reconciliation worker,
// blocking until shutdown.
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

	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	sink, closeSink := newEventSink(cfg.AMQPURL, logger)
	defer closeSink()
	hub := notify.NewHub(cfg.SSEKeepalive, sink)
	hub.Start()
	defer hub.Close()

	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	store := repository.NewStore(pool)
	gw := gateway.NewHTTPGateway(gateway.NewRoutingTable(cfg.BankRoutes), cfg.OutboundTimeout)

	audit := service.NewAuditService()
	executor := service.NewExecutor(store, service.NewAccountResolver(), audit, hub, cfg.OwnBankCode)
	transferSvc := service.NewTransferService(store, executor, gw, audit, hub, cfg.OwnBankCode)

	box, err := fieldcrypt.NewBoxFromHex(cfg.HolderNameKey)
	if err != nil {
		return fmt.Errorf("holder name key: %w", err)
	}
	if box != nil {
		transferSvc.WithNameOpener(box)
	}

	reconSvc := service.NewReconciliationService(store, cfg.StalePendingAfter)
	stopWorker, err := worker.NewReconciliationWorker(reconSvc).
		WithSchedule(cfg.ReconciliationSchedule).
		Run(ctx)
	if err != nil {
		return fmt.Errorf("start reconciliation worker: %w", err)
	}

	router := api.NewRouter(cfg, logger, api.Deps{
		DB:          pool,
		Idempotency: idemStore,
		Redis:       redisClient,
		Transfers:   transferSvc,
		Executor:    executor,
		Hub:         hub,
	})

	// WriteTimeout stays unset so event streams are not cut off.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("bank_code", cfg.OwnBankCode),
			zap.Int("routes", len(cfg.BankRoutes)),
		)
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

	logger.Info("stopping reconciliation worker")
	stopWorker()

	// Event streams never finish on their own; closing the hub ends them.
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newEventSink(url string, logger *zap.Logger) (notify.Sink, func()) {
	if url == "" {
		return notify.NopSink{}, func() {}
	}
	pub, err := notify.NewAMQPPublisher(url)
	if err != nil {
		logger.Warn("amqp unavailable, completion events stay local", zap.Error(err))
		return notify.NopSink{}, func() {}
	}
	logger.Info("publishing completion events", zap.String("exchange", notify.TransferExchange))
	return pub, pub.Close
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
