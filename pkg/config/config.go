package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "FARMLINK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                   = "FARMLINK_APP_ENV"
	EnvPort                     = "FARMLINK_APP_PORT"
	EnvDBDSN                    = "FARMLINK_DB_DSN"
	EnvDBHost                   = "FARMLINK_DB_HOST"
	EnvDBUser                   = "FARMLINK_DB_USER"
	EnvDBName                   = "FARMLINK_DB_NAME"
	EnvRedisURL                 = "FARMLINK_REDIS_URL"
	EnvJWTSecret                = "FARMLINK_JWT_SECRET"
	EnvJWTIssuer                = "FARMLINK_JWT_ISSUER"
	EnvGCPProjectID             = "FARMLINK_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic        = "FARMLINK_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSubscription = "FARMLINK_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvDeliveryFeeCents         = "FARMLINK_ORDERS_DELIVERY_FEE_CENTS"
	EnvStripeAPIKey             = "FARMLINK_STRIPE_API_KEY"
	EnvStripeSecret             = "FARMLINK_STRIPE_SECRET"
	EnvPaymentsSuccessURL       = "FARMLINK_PAYMENTS_SUCCESS_URL"
	EnvPaymentsCancelURL        = "FARMLINK_PAYMENTS_CANCEL_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Orders       OrdersConfig
	Payments     PaymentsConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Orders.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(cfg.Stripe); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FARMLINK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FARMLINK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FARMLINK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"FARMLINK_CORS_ORIGINS" default:"http://localhost:3000"`

	RateLimitPerMinute int `envconfig:"FARMLINK_RATE_LIMIT_PER_MINUTE" default:"120"`
	RateLimitBurst     int `envconfig:"FARMLINK_RATE_LIMIT_BURST" default:"30"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FARMLINK_DB_DSN"`
	Driver string `envconfig:"FARMLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARMLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMLINK_DB_USER"`
	LegacyPassword string `envconfig:"FARMLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMLINK_REDIS_ADDR"`
	Password     string        `envconfig:"FARMLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens issued by the auth service.
type JWTConfig struct {
	Secret string `envconfig:"FARMLINK_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FARMLINK_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMLINK_AUTO_MIGRATE" default:"false"`
	EmailNotify bool `envconfig:"FARMLINK_FEATURE_EMAIL_NOTIFY" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FARMLINK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	HTTPIdempotencyTTL   time.Duration `envconfig:"FARMLINK_EVENTING_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	WebhookIdempotency   time.Duration `envconfig:"FARMLINK_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMLINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FARMLINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMLINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"FARMLINK_PUBSUB_ORDERS_TOPIC" default:"farmlink-order-events"`
	OrdersSubscription string `envconfig:"FARMLINK_PUBSUB_ORDERS_SUBSCRIPTION" default:"farmlink-order-events-worker"`
	DLQTopic           string `envconfig:"FARMLINK_PUBSUB_DLQ_TOPIC"`
}

type BigQueryConfig struct {
	Dataset          string        `envconfig:"FARMLINK_BIGQUERY_DATASET" default:"farmlink"`
	OrderEventsTable string        `envconfig:"FARMLINK_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
	BatchSize        int           `envconfig:"FARMLINK_BIGQUERY_BATCH_SIZE" default:"1"`
	FlushInterval    time.Duration `envconfig:"FARMLINK_BIGQUERY_FLUSH_INTERVAL" default:"5s"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"FARMLINK_STRIPE_API_KEY"`
	Secret   string `envconfig:"FARMLINK_STRIPE_SECRET"`
	Env      string `envconfig:"FARMLINK_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"FARMLINK_STRIPE_CURRENCY" default:"usd"`

	WebhookTolerance time.Duration `envconfig:"FARMLINK_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"FARMLINK_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"FARMLINK_SENDGRID_FROM_EMAIL" default:"orders@farmlink.app"`
	FromName    string `envconfig:"FARMLINK_SENDGRID_FROM_NAME" default:"Farmlink"`
}

// OrdersConfig drives order creation and expiry.
type OrdersConfig struct {
	DeliveryFeeCents     int64         `envconfig:"FARMLINK_ORDERS_DELIVERY_FEE_CENTS" default:"10000"`
	NumberPrefix         string        `envconfig:"FARMLINK_ORDERS_NUMBER_PREFIX" default:"ORD"`
	NumberMaxAttempts    int           `envconfig:"FARMLINK_ORDERS_NUMBER_MAX_ATTEMPTS" default:"5"`
	UnpaidTTL            time.Duration `envconfig:"FARMLINK_ORDERS_UNPAID_TTL" default:"24h"`
	MaxItemsPerOrder     int           `envconfig:"FARMLINK_ORDERS_MAX_ITEMS" default:"50"`
	ListDefaultPageLimit int           `envconfig:"FARMLINK_ORDERS_LIST_LIMIT" default:"20"`
}

func (o OrdersConfig) validate() error {
	if o.DeliveryFeeCents < 0 {
		return fmt.Errorf("%s must be non-negative", EnvDeliveryFeeCents)
	}
	if o.NumberMaxAttempts <= 0 {
		return fmt.Errorf("order number max attempts must be positive")
	}
	if strings.TrimSpace(o.NumberPrefix) == "" {
		return fmt.Errorf("order number prefix is required")
	}
	return nil
}

// PaymentsConfig controls the online payment handoff.
type PaymentsConfig struct {
	Enabled         bool          `envconfig:"FARMLINK_PAYMENTS_ENABLED" default:"false"`
	GatewayTimeout  time.Duration `envconfig:"FARMLINK_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
	SuccessURL      string        `envconfig:"FARMLINK_PAYMENTS_SUCCESS_URL"`
	CancelURL       string        `envconfig:"FARMLINK_PAYMENTS_CANCEL_URL"`
	ReconcileAfter  time.Duration `envconfig:"FARMLINK_PAYMENTS_RECONCILE_AFTER" default:"15m"`
	ReconcileBatch  int           `envconfig:"FARMLINK_PAYMENTS_RECONCILE_BATCH" default:"100"`
	CheckoutExpires time.Duration `envconfig:"FARMLINK_PAYMENTS_CHECKOUT_EXPIRES" default:"1h"`
}

func (p PaymentsConfig) validate(stripe StripeConfig) error {
	if !p.Enabled {
		return nil
	}
	missing := []string{}
	if strings.TrimSpace(stripe.APIKey) == "" {
		missing = append(missing, EnvStripeAPIKey)
	}
	if strings.TrimSpace(stripe.Secret) == "" {
		missing = append(missing, EnvStripeSecret)
	}
	if strings.TrimSpace(p.SuccessURL) == "" {
		missing = append(missing, EnvPaymentsSuccessURL)
	}
	if strings.TrimSpace(p.CancelURL) == "" {
		missing = append(missing, EnvPaymentsCancelURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("online payments enabled but %s missing", strings.Join(missing, ", "))
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FARMLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FARMLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FARMLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FARMLINK_OUTBOX_RETENTION" default:"168h"`
	MetricsAddr    string        `envconfig:"FARMLINK_OUTBOX_METRICS_ADDR" default:":9091"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"FARMLINK_CRON_INTERVAL" default:"1m"`
	LockTTL    time.Duration `envconfig:"FARMLINK_CRON_LOCK_TTL" default:"5m"`
	JobTimeout time.Duration `envconfig:"FARMLINK_CRON_JOB_TIMEOUT" default:"30s"`

	NotificationRetention time.Duration `envconfig:"FARMLINK_CRON_NOTIFICATION_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
