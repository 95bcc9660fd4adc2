package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockmonitor/internal/alerts"
	"github.com/angelmondragon/stockmonitor/internal/cron"
	"github.com/angelmondragon/stockmonitor/internal/stock"
	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/metrics"
	"github.com/angelmondragon/stockmonitor/pkg/migrate"
	"github.com/angelmondragon/stockmonitor/pkg/outbox"
	"github.com/angelmondragon/stockmonitor/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	registry, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.LockName), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(logg.WithField(ctx, "jobs", registry.Names()), "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildJobs registers the expiry sweep, the optional alert scan and outbox
// retention, in that order.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	stockMetrics := metrics.NewStockMetrics(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository(dbClient.DB())

	jobs := []func() (cron.Job, error){
		func() (cron.Job, error) {
			return cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
				Logger:    logg,
				DB:        dbClient,
				Expirer:   stock.NewExpirer(stock.NewReservationRepository(dbClient.DB())),
				Metrics:   stockMetrics,
				BatchSize: cfg.Cron.ExpiryBatchSize,
			})
		},
	}
	if cfg.Cron.AlertScanEnabled {
		jobs = append(jobs, func() (cron.Job, error) {
			engine, err := alerts.NewEngine(alerts.EngineParams{
				Repo:     alerts.NewRepository(dbClient.DB()),
				TxRunner: dbClient,
				Outbox:   outbox.NewService(outboxRepo, logg),
				Config:   cfg.Alerts,
				Metrics:  stockMetrics,
				Logger:   logg,
			})
			if err != nil {
				return nil, fmt.Errorf("alert engine: %w", err)
			}
			return cron.NewStockAlertScanJob(cron.StockAlertScanJobParams{Logger: logg, Scanner: engine})
		})
	}
	jobs = append(jobs, func() (cron.Job, error) {
		return cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
			Logger:      logg,
			DB:          dbClient,
			Repository:  outboxRepo,
			Retention:   cfg.Cron.OutboxRetentionDays,
			MinAttempts: cfg.Outbox.MaxAttempts,
			StallAfter:  cfg.Cron.OutboxStallAfter,
		})
	})

	registry := cron.NewRegistry()
	for _, build := range jobs {
		job, err := build()
		if err == nil {
			err = registry.Register(job)
		}
		if err != nil {
			return nil, fmt.Errorf("register cron job: %w", err)
		}
	}
	return registry, nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
