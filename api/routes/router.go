package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/farmlink-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/farmlink-backend/api/controllers/webhooks"
	"github.com/angelmondragon/farmlink-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/notifications"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	"github.com/angelmondragon/farmlink-backend/internal/payments"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/farmlink-backend/pkg/redis"
	"github.com/angelmondragon/farmlink-backend/pkg/stripe"
)

// RedisStore backs HTTP idempotency and the readiness probe.
type RedisStore interface {
	redis.IdempotencyStore
	Ping(ctx context.Context) error
}

// Dependencies are the services the router mounts. Payments, StripeClient
// and StripeWebhook are nil when online payments are disabled.
type Dependencies struct {
	DB            controllers.Pinger
	Redis         RedisStore
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Payments      payments.Service
	Notifications notifications.Service
	StripeClient  *stripe.Client
	StripeWebhook webhookcontrollers.StripeWebhookService
	EventGuard    *idempotency.Guard
	Metrics       http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}, logg))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	if deps.StripeClient != nil && deps.StripeWebhook != nil {
		r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.EventGuard, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			PerMinute: cfg.App.RateLimitPerMinute,
			Burst:     cfg.App.RateLimitBurst,
		}, logg))
		r.Use(middleware.Idempotency(deps.Redis, cfg.Eventing.HTTPIdempotencyTTL, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.RoleBuyer)).
				Post("/", ordercontrollers.CreateOrder(deps.Checkout, logg))
			r.With(middleware.RequireRole(logg, enums.RoleBuyer, enums.RoleSeller)).
				Get("/", ordercontrollers.ListOrders(deps.Orders, cfg.Orders.ListDefaultPageLimit, logg))
			r.With(middleware.RequireRole(logg, enums.RoleSeller)).
				Post("/items/{itemId}/decision", ordercontrollers.DecideItem(deps.Orders, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.GetOrder(deps.Orders, logg))
				r.Post("/status", ordercontrollers.TransitionOrder(deps.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.RoleBuyer)).
					Post("/payments", ordercontrollers.InitiatePayment(deps.Payments, logg))
			})
		})

		r.With(middleware.RequireRole(logg, enums.RoleBuyer)).
			Post("/payments/reconcile", ordercontrollers.ReconcilePayment(deps.Payments, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
