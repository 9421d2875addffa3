package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/farmlink-backend/api/routes"
	"github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/checkout/intake"
	"github.com/angelmondragon/farmlink-backend/internal/inventory"
	"github.com/angelmondragon/farmlink-backend/internal/notifications"
	"github.com/angelmondragon/farmlink-backend/internal/ordernumber"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/internal/products"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/db"
	"github.com/angelmondragon/farmlink-backend/pkg/instance"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/migrate"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/farmlink-backend/pkg/redis"
	"github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	stripeEventTTL    = 72 * time.Hour
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
		Format:      cfg.App.LogFormat,
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

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":             cfg.App.Env,
		"instance":        instance.ID(),
		"addr":            addr,
		"online_payments": cfg.Payments.Enabled,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())
	ledger := inventory.NewLedger()

	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, ledger, logg, orderMetrics)
	if err != nil {
		return routes.Dependencies{}, err
	}

	numbers, err := ordernumber.New(ordernumber.Config{
		Prefix:      cfg.Orders.NumberPrefix,
		MaxAttempts: cfg.Orders.NumberMaxAttempts,
	}, ordersRepo, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	notificationsService, err := notifications.NewService(notifications.Deps{
		Repo:   notifications.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	deps := routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Orders:        ordersService,
		Notifications: notificationsService,
		Metrics:       promhttp.Handler(),
	}

	var paymentsService payments.Service
	if cfg.Payments.Enabled {
		stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			return routes.Dependencies{}, err
		}
		gateway, err := payments.NewStripeGateway(stripeClient)
		if err != nil {
			return routes.Dependencies{}, err
		}
		transactions := payments.NewRepository(dbClient.DB())
		paymentsService, err = payments.NewService(payments.Config{
			Currency:        stripeClient.Currency(),
			GatewayTimeout:  cfg.Payments.GatewayTimeout,
			SuccessURL:      cfg.Payments.SuccessURL,
			CancelURL:       cfg.Payments.CancelURL,
			CheckoutExpires: cfg.Payments.CheckoutExpires,
		}, payments.Deps{
			Tx:           dbClient,
			Transactions: transactions,
			Orders:       ordersRepo,
			Gateway:      gateway,
			Outbox:       outboxService,
			Logger:       logg,
			Metrics:      orderMetrics,
		})
		if err != nil {
			return routes.Dependencies{}, err
		}
		guard, err := idempotency.NewGuard(redisClient, stripeEventTTL)
		if err != nil {
			return routes.Dependencies{}, err
		}
		deps.Payments = paymentsService
		deps.StripeClient = stripeClient
		deps.StripeWebhook = payments.NewWebhookHandler(paymentsService, transactions, logg)
		deps.EventGuard = guard
	}

	checkoutService, err := checkout.NewService(checkout.Config{
		DeliveryFeeCents: cfg.Orders.DeliveryFeeCents,
	}, checkout.Deps{
		Tx:        dbClient,
		Orders:    ordersRepo,
		Validator: intake.NewValidator(products.NewRepository(dbClient.DB()), cfg.Orders.MaxItemsPerOrder),
		Stock:     ledger,
		Numbers:   numbers,
		Outbox:    outboxService,
		Payments:  paymentsService,
		Logger:    logg,
		Metrics:   orderMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	deps.Checkout = checkoutService

	return deps, nil
}
