package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/subtrack/billing-engine/internal/config"
	"github.com/subtrack/billing-engine/internal/handler"
	"github.com/subtrack/billing-engine/internal/infra/postgresql"
	"github.com/subtrack/billing-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/subtrack/billing-engine/internal/infra/redis"
	"github.com/subtrack/billing-engine/internal/notifier"
	"github.com/subtrack/billing-engine/internal/observability"
	"github.com/subtrack/billing-engine/internal/repository"
	"github.com/subtrack/billing-engine/internal/service"
	"github.com/subtrack/billing-engine/internal/transport"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	subscriptionRepo := repository.NewGormSubscriptionRepo(db)
	paymentRepo := repository.NewGormPaymentRepo(db)
	preferencesRepo := repository.NewGormPreferencesRepo(db)
	deliveryRepo := repository.NewGormDeliveryStateRepo(db)

	deduplicator, err := infraredis.NewReminderDeduplicator(rdb, cfg.DedupWindowHours)
	if err != nil {
		logger.Fatal("deduplicator initialization failed", zap.Error(err))
	}
	lease, err := infraredis.NewRunLease(rdb, time.Duration(cfg.LeaseTTLSeconds)*time.Second)
	if err != nil {
		logger.Fatal("run lease initialization failed", zap.Error(err))
	}
	rateLimiter, err := infraredis.NewSendRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	sender, err := notifier.NewWebhookNotifier(cfg.NotifierURL)
	if err != nil {
		logger.Fatal("notifier initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	dispatcher, err := service.NewReminderDispatcher(
		subscriptionRepo,
		paymentRepo,
		preferencesRepo,
		deliveryRepo,
		deduplicator,
		lease,
		sender,
		rateLimiter,
		service.DispatcherOptions{
			Tolerance:     time.Duration(cfg.ToleranceMinutes) * time.Minute,
			Concurrency:   cfg.SendConcurrency,
			MaxAttempts:   cfg.MaxSendAttempts,
			ScanBatchSize: cfg.DispatchBatchSize,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	recovery, err := service.NewRecoveryService(
		deliveryRepo,
		subscriptionRepo,
		preferencesRepo,
		deduplicator,
		sender,
		rateLimiter,
		cfg.MaxSendAttempts,
		0,
		logger,
	)
	if err != nil {
		logger.Fatal("recovery service initialization failed", zap.Error(err))
	}
	recovery.SetMetrics(metrics)

	subscriptionService, err := service.NewSubscriptionService(
		subscriptionRepo,
		paymentRepo,
		preferencesRepo,
		logger,
	)
	if err != nil {
		logger.Fatal("subscription service initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewScheduler(
		dispatcher,
		recovery,
		deliveryRepo,
		service.SchedulerOptions{
			DispatchSpec: cfg.DispatchCron,
			RecoverySpec: cfg.RecoveryCron,
			PurgeSpec:    cfg.PurgeCron,
			Retention:    time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterSubscriptionRoutes(app, subscriptionService, dispatcher); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	scheduler.Start()

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()
	logger.Info("billing-engine api started", zap.Int("port", cfg.APIPort))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown failed", zap.Error(err))
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
