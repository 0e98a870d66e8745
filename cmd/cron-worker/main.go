package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/campuseats/campuseats-backend/internal/catalog"
	"github.com/campuseats/campuseats-backend/internal/cron"
	"github.com/campuseats/campuseats-backend/internal/locks"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/config"
	"github.com/campuseats/campuseats-backend/pkg/db"
	"github.com/campuseats/campuseats-backend/pkg/instance"
	"github.com/campuseats/campuseats-backend/pkg/logger"
	"github.com/campuseats/campuseats-backend/pkg/metrics"
	"github.com/campuseats/campuseats-backend/pkg/migrate"
	"github.com/campuseats/campuseats-backend/pkg/outbox"
	"github.com/campuseats/campuseats-backend/pkg/redis"
)

const lockKeyFormat = "ce:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	orderRepo := orders.NewRepository(dbClient.DB())
	vendorRepo := vendors.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	reportRepo := reports.NewRepository(dbClient.DB())
	publisher := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	lockCache := locks.NewCache(metrics.NewLockCacheMetrics(prometheus.DefaultRegisterer))

	reportSvc, err := reports.NewService(reportRepo, vendorRepo, catalogRepo, dbClient, cfg.Reports.Timezone)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	cleanupJob, err := cron.NewCleanupJob(cron.CleanupJobParams{
		Logger: logg,
		DB:     dbClient,
		Orders: orderRepo,
		Locks:  lockCache,
		Outbox: publisher,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cleanup job", err)
		os.Exit(1)
	}
	transferTTLJob, err := cron.NewTransferTTLJob(cron.TransferTTLJobParams{
		Logger:  logg,
		DB:      dbClient,
		Orders:  orderRepo,
		Vendors: vendorRepo,
		Reports: reportRepo,
		Days:    reportSvc,
		Outbox:  publisher,
		Window:  cfg.Transfers.ExpiryWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create transfer ttl job", err)
		os.Exit(1)
	}
	rolloverJob, err := cron.NewReportRolloverJob(cron.ReportRolloverJobParams{
		Logger:  logg,
		Vendors: vendorRepo,
		Reports: reportSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create report rollover job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(cleanupJob, transferTTLJob, rolloverJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
