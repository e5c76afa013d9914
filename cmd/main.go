/**
 * @description
 * This is the main entry point for the ledger-service. It loads configuration, opens
 * the store (PostgreSQL or in-memory), connects the optional Redis lock backend and
 * RabbitMQ producer, builds the ledger service, starts the job scheduler and serves
 * the HTTP API until SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: Local .env loading.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Distributed account locks.
 * - go.uber.org/zap: Structured logging.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/logger, pkg/rabbitmq: Logger construction and event publishing.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/anomaly"
	"github.com/solubank/ledger-service/internal/api"
	"github.com/solubank/ledger-service/internal/app"
	"github.com/solubank/ledger-service/internal/config"
	"github.com/solubank/ledger-service/internal/store"
	"github.com/solubank/ledger-service/pkg/logger"
	"github.com/solubank/ledger-service/pkg/rabbitmq"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	zl, err := logger.New(cfg.LogEnv)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"logger init failed\" err=%v", err)
	}
	defer zl.Sync()
	boot := logger.Component(zl, "bootstrap")

	for _, warning := range cfg.Warnings {
		boot.Warn("configuration adjusted", zap.String("detail", warning))
	}
	boot.Info("starting ledger-service", zap.String("port", cfg.ServerPort), zap.String("store", cfg.StoreDriver))

	repository, closeStore := openStore(cfg, boot)
	defer closeStore()

	var publisher rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		boot.Warn("rabbitmq url missing; events are logged only", zap.String("env", "RABBITMQ_URL"))
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, zl); err != nil {
		boot.Warn("rabbitmq producer unavailable; using fallback", zap.Error(err))
	} else {
		defer producer.Close()
		publisher = producer
		boot.Info("rabbitmq producer connected")
	}

	ledgerService := app.NewService(repository, publisher, zl, app.Options{
		Rules: anomaly.Rules{
			LargeAmountThreshold: cfg.LargeAmountThreshold,
			HomeRegion:           cfg.HomeRegion,
			BurstWindow:          cfg.BurstWindow(),
		},
		InactivityDays:      cfg.InactivityDays,
		LowBalanceThreshold: cfg.LowBalanceThreshold,
		TopClientsLimit:     cfg.TopClientsLimit,
		AtomicRecording:     cfg.AtomicRecording,
		EventsExchange:      cfg.EventsExchange,
		ReconcileBatchSize:  cfg.ReconcileBatchSize,
	})

	if redisClient := connectRedis(cfg, boot); redisClient != nil {
		defer redisClient.Close()
		ledgerService.SetAccountLocker(app.NewRedisAccountLocker(redisClient, cfg.RedisLockPrefix, cfg.AccountLockTTL()))
	}

	jobs := app.NewJobs(ledgerService, zl)
	var scheduler *app.Scheduler
	if cfg.SchedulerEnabled {
		scheduler = app.NewScheduler(jobs, zl, cfg)
		scheduler.Start()
	} else {
		boot.Info("scheduler disabled; jobs run only through /internal/jobs")
	}

	router := api.NewRouter(api.NewHandlers(ledgerService, jobs, zl), api.RouterOptions{
		JWTSecret:          cfg.JWTSecret,
		InternalAPIKey:     cfg.InternalAPIKey,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}, zl)
	if cfg.InternalAPIKey == "" {
		boot.Warn("internal api key not configured; /internal/jobs is unauthenticated", zap.String("env", "INTERNAL_API_KEY"))
	}
	if cfg.JWTSecret == "" {
		boot.Warn("jwt secret not configured; /v1 is unauthenticated", zap.String("env", "JWT_SECRET"))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server listening", zap.String("component", "http"), zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server stopped unexpectedly", zap.String("component", "http"), zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	zl.Info("shutdown started", zap.String("component", "http"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			zl.Warn("scheduler jobs still running at shutdown")
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		zl.Error("shutdown failed", zap.String("component", "http"), zap.Error(err))
	}

	zl.Info("shutdown complete", zap.String("component", "http"))
}

// openStore returns the configured repository and the function that releases it.
func openStore(cfg config.Config, boot *zap.Logger) (store.Repository, func()) {
	if cfg.StoreDriver == config.DriverMemory {
		boot.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryRepository(), func() {}
	}

	if cfg.RunMigrations {
		if err := store.RunMigrations(boot, cfg.DatabaseURL); err != nil {
			boot.Fatal("database migration failed", zap.Error(err))
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		boot.Fatal("database url parse failed", zap.Error(err))
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		boot.Fatal("database connection failed", zap.Error(err))
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		boot.Fatal("database ping failed", zap.Error(err))
	}
	boot.Info("database connected")
	return store.NewPostgresRepository(dbpool), dbpool.Close
}

// connectRedis returns nil when Redis is not configured or unreachable; the service
// then keeps its in-process account locks.
func connectRedis(cfg config.Config, boot *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		boot.Info("redis url missing; using in-process account locks", zap.String("env", "REDIS_URL"))
		return nil
	}
	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		boot.Warn("redis url parse failed; using in-process account locks", zap.Error(err))
		return nil
	}
	client := redis.NewClient(redisOptions)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		boot.Warn("redis ping failed; using in-process account locks", zap.Error(err))
		client.Close()
		return nil
	}
	boot.Info("redis connected")
	return client
}
