package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/campuseats/campuseats-backend/api/routes"
	"github.com/campuseats/campuseats-backend/internal/catalog"
	"github.com/campuseats/campuseats-backend/internal/checkout"
	"github.com/campuseats/campuseats-backend/internal/cron"
	"github.com/campuseats/campuseats-backend/internal/locks"
	"github.com/campuseats/campuseats-backend/internal/orders"
	"github.com/campuseats/campuseats-backend/internal/reports"
	"github.com/campuseats/campuseats-backend/internal/transfers"
	"github.com/campuseats/campuseats-backend/internal/universities"
	"github.com/campuseats/campuseats-backend/internal/vendors"
	"github.com/campuseats/campuseats-backend/pkg/config"
	"github.com/campuseats/campuseats-backend/pkg/db"
	"github.com/campuseats/campuseats-backend/pkg/logger"
	"github.com/campuseats/campuseats-backend/pkg/metrics"
	"github.com/campuseats/campuseats-backend/pkg/migrate"
	"github.com/campuseats/campuseats-backend/pkg/outbox"
	"github.com/campuseats/campuseats-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	universityRepo := universities.NewRepository(dbClient.DB())
	publisher := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	lockCache := locks.NewCache(metrics.NewLockCacheMetrics(prometheus.DefaultRegisterer))

	reportService, err := reports.NewService(reportRepo, vendorRepo, catalogRepo, dbClient, cfg.Reports.Timezone)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}
	transferService, err := transfers.NewService(orderRepo, vendorRepo, catalogRepo, reportRepo, universityRepo, reportService, dbClient, publisher)
	if err != nil {
		logg.Error(context.Background(), "failed to create transfers service", err)
		os.Exit(1)
	}
	checkoutService, err := checkout.NewService(orderRepo, vendorRepo, catalogRepo, lockCache, dbClient, logg, cfg.Checkout.ReservationWindow)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	// The same sweep the worker schedules, exposed for on-demand admin runs.
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			lockCache,
			orderRepo,
			checkoutService,
			transferService,
			reportService,
			cleanupJob,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
