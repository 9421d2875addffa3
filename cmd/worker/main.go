package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/farmlink-backend/internal/analytics"
	"github.com/angelmondragon/farmlink-backend/internal/analytics/writer"
	"github.com/angelmondragon/farmlink-backend/internal/consumers"
	"github.com/angelmondragon/farmlink-backend/internal/notifications"
	"github.com/angelmondragon/farmlink-backend/internal/users"
	"github.com/angelmondragon/farmlink-backend/pkg/bigquery"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/instance"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/mailer"
	"github.com/angelmondragon/farmlink-backend/pkg/migrate"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
	"github.com/angelmondragon/farmlink-backend/pkg/pubsub"
	"github.com/angelmondragon/farmlink-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.ID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency guard", err)
		os.Exit(1)
	}

	notifyDeps := notifications.Deps{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Publisher: redisClient,
		Logger:    logg,
	}
	if cfg.FeatureFlags.EmailNotify && strings.TrimSpace(cfg.Sendgrid.APIKey) != "" {
		sendgrid, err := mailer.NewSendGrid(cfg.Sendgrid)
		if err != nil {
			logg.Error(ctx, "failed to create sendgrid mailer", err)
			os.Exit(1)
		}
		notifyDeps.Mailer = sendgrid
		notifyDeps.Contacts = users.NewRepository(dbClient.DB())
	}
	notifier, err := notifications.NewService(notifyDeps)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}
	fanout, err := notifications.NewFanout(notifier, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification fanout", err)
		os.Exit(1)
	}
	fanout.WithRecipientGuard(guard)
	handlers := []consumers.Handler{fanout}

	var analyticsWriter *writer.BigQueryWriter
	if strings.TrimSpace(cfg.BigQuery.OrderEventsTable) != "" {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap bigquery", err)
			os.Exit(1)
		}
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing bigquery", err)
			}
		}()
		analyticsWriter, err = writer.New(bqClient, writer.Config{
			OrderEventsTable: cfg.BigQuery.OrderEventsTable,
			BatchSize:        cfg.BigQuery.BatchSize,
		})
		if err != nil {
			logg.Error(ctx, "failed to create analytics writer", err)
			os.Exit(1)
		}
		recorder, err := analytics.NewRecorder(analyticsWriter, logg)
		if err != nil {
			logg.Error(ctx, "failed to create analytics recorder", err)
			os.Exit(1)
		}
		handlers = append(handlers, recorder)
	}

	dispatcher, err := consumers.NewDispatcher(pubsubClient.OrdersSubscriber(), eventRegistry, guard, logg, handlers...)
	if err != nil {
		logg.Error(ctx, "failed to create event dispatcher", err)
		os.Exit(1)
	}
	if deadLetter := pubsubClient.DeadLetter(); deadLetter != nil {
		dispatcher.WithDeadLetter(deadLetter)
	}

	params := ServiceParams{
		Logger: logg,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
		Dispatcher:    dispatcher,
		FlushInterval: cfg.BigQuery.FlushInterval,
	}
	if analyticsWriter != nil {
		params.Analytics = analyticsWriter
	}
	service, err := NewService(params)
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
