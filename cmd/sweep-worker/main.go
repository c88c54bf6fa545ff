package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rfl-designer/e-tupan-sub007/api/handlers"
	"github.com/rfl-designer/e-tupan-sub007/api/routes"
	"github.com/rfl-designer/e-tupan-sub007/internal/cron"
	"github.com/rfl-designer/e-tupan-sub007/internal/reservation"
	"github.com/rfl-designer/e-tupan-sub007/pkg/config"
	"github.com/rfl-designer/e-tupan-sub007/pkg/db"
	"github.com/rfl-designer/e-tupan-sub007/pkg/logger"
	"github.com/rfl-designer/e-tupan-sub007/pkg/metrics"
	"github.com/rfl-designer/e-tupan-sub007/pkg/migrate"
	"github.com/rfl-designer/e-tupan-sub007/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweep-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
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

	reservationService, err := reservation.NewService(reservation.ServiceParams{
		Repo:       reservation.NewRepository(dbClient.DB()),
		Tx:         dbClient,
		DefaultTTL: cfg.Inventory.DefaultReservationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("sweep-worker", cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger:       logg,
		Reservations: reservationService,
		Metrics:      metricsCollector,
		BatchSize:    cfg.Inventory.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Inventory.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	opsServer := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewOpsRouter(cfg, logg,
			handlers.NamedPinger{Name: "database", Pinger: dbClient},
			handlers.NamedPinger{Name: "redis", Pinger: redisClient},
		),
	}
	go func() {
		logg.Info(ctx, "ops server listening on :"+cfg.App.Port)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
			stop()
		}
	}()
	defer func() {
		if err := opsServer.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "error shutting down ops server", err)
		}
	}()

	logg.Info(ctx, "starting sweep worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}
