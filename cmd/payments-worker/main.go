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

	"github.com/angelmondragon/stockmonitor/internal/app"
	"github.com/angelmondragon/stockmonitor/internal/consumers/payments"
	"github.com/angelmondragon/stockmonitor/pkg/config"
	"github.com/angelmondragon/stockmonitor/pkg/db"
	"github.com/angelmondragon/stockmonitor/pkg/logger"
	"github.com/angelmondragon/stockmonitor/pkg/pubsub"
	"github.com/angelmondragon/stockmonitor/pkg/redis"
)

const serviceName = "payments-worker"

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
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.PaymentsSubscription,
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "payments worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "payments worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeQuietly(ctx, logg, "pubsub client", pubsubClient.Close)

	services, err := app.NewServices(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	guard, err := payments.NewProcessedGuard(redisClient, cfg.PubSub.ProcessedEventTTL)
	if err != nil {
		return fmt.Errorf("processed-event guard: %w", err)
	}
	consumer, err := payments.NewConsumer(services.Stock, guard, logg)
	if err != nil {
		return fmt.Errorf("payments consumer: %w", err)
	}

	sub := pubsubClient.Subscriber(cfg.PubSub.PaymentsSubscription)
	if sub == nil {
		return fmt.Errorf("payments subscription %q is not configured", cfg.PubSub.PaymentsSubscription)
	}

	logg.Info(ctx, "starting payments worker")
	if err := consumer.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
