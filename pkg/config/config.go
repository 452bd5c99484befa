package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Stripe       StripeConfig
	PayPal       PayPalConfig
	Checkout     CheckoutConfig
	Payments     PaymentsConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"STOREFRONT_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
	// MetricsAddr is the listen address for worker processes' /metrics
	// endpoint. Empty disables it. The api serves metrics on its own port.
	MetricsAddr string `envconfig:"STOREFRONT_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"STOREFRONT_REDIS_KEY_PREFIX" default:"sf"`
}

// JWTConfig verifies admin bearer tokens issued by the identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL   time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL  time.Duration `envconfig:"STOREFRONT_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
	CheckoutIdempotencyTTL time.Duration `envconfig:"STOREFRONT_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
	PaymentsTopic         string `envconfig:"STOREFRONT_PUBSUB_PAYMENTS_TOPIC" default:"storefront-payment-events"`
	InventoryTopic        string `envconfig:"STOREFRONT_PUBSUB_INVENTORY_TOPIC" default:"storefront-inventory-events"`
	AnalyticsTopic        string `envconfig:"STOREFRONT_PUBSUB_ANALYTICS_TOPIC" default:"storefront-analytics-events"`
	AnalyticsSubscription string `envconfig:"STOREFRONT_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"storefront-analytics"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	OrderFactsTable     string `envconfig:"STOREFRONT_BIGQUERY_ORDER_TABLE" default:"order_facts"`
	PaymentFactsTable   string `envconfig:"STOREFRONT_BIGQUERY_PAYMENT_TABLE" default:"payment_facts"`
	InventoryFactsTable string `envconfig:"STOREFRONT_BIGQUERY_INVENTORY_TABLE" default:"inventory_facts"`
	BatchSize           int    `envconfig:"STOREFRONT_BIGQUERY_BATCH_SIZE" default:"1"`
}

// CronConfig drives the maintenance worker. Retention windows default to
// the job packages' own values when left at zero.
type CronConfig struct {
	Interval              time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	JobTimeout            time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"5m"`
	LockTTL               time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
	NotificationRetention time.Duration `envconfig:"STOREFRONT_CRON_NOTIFICATION_RETENTION"`
	OutboxRetention       time.Duration `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether Stripe credentials were supplied.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type PayPalConfig struct {
	ClientID  string `envconfig:"STOREFRONT_PAYPAL_CLIENT_ID"`
	Secret    string `envconfig:"STOREFRONT_PAYPAL_SECRET"`
	WebhookID string `envconfig:"STOREFRONT_PAYPAL_WEBHOOK_ID"`
	Env       string `envconfig:"STOREFRONT_PAYPAL_ENV" default:"sandbox"`
	BrandName string `envconfig:"STOREFRONT_PAYPAL_BRAND_NAME" default:"Brick Apparel"`
	ReturnURL string `envconfig:"STOREFRONT_PAYPAL_RETURN_URL" default:"http://localhost:3000/checkout/paypal/return"`
	CancelURL string `envconfig:"STOREFRONT_PAYPAL_CANCEL_URL" default:"http://localhost:3000/checkout"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether PayPal credentials were supplied.
func (p PayPalConfig) Enabled() bool {
	return strings.TrimSpace(p.ClientID) != ""
}

// CheckoutConfig holds the pricing and retention policy constants.
type CheckoutConfig struct {
	Currency                   string            `envconfig:"STOREFRONT_CHECKOUT_CURRENCY" default:"USD"`
	ShippingFlatCents          int64             `envconfig:"STOREFRONT_CHECKOUT_SHIPPING_FLAT_CENTS" default:"1000"`
	FreeShippingThresholdCents int64             `envconfig:"STOREFRONT_CHECKOUT_FREE_SHIPPING_THRESHOLD_CENTS" default:"10000"`
	TaxRates                   map[string]string `envconfig:"STOREFRONT_CHECKOUT_TAX_RATES" default:"CA:0.08,NY:0.06"`
	DefaultTaxRate             string            `envconfig:"STOREFRONT_CHECKOUT_DEFAULT_TAX_RATE" default:"0.05"`
	CartRetention              time.Duration     `envconfig:"STOREFRONT_CART_RETENTION" default:"720h"`
	PendingPaymentTTL          time.Duration     `envconfig:"STOREFRONT_PENDING_PAYMENT_TTL" default:"72h"`
}

// PaymentsConfig bounds every outbound payment provider call.
type PaymentsConfig struct {
	CallTimeout time.Duration `envconfig:"STOREFRONT_PAYMENTS_CALL_TIMEOUT" default:"10s"`
	MaxAttempts int           `envconfig:"STOREFRONT_PAYMENTS_MAX_ATTEMPTS" default:"3"`
	BaseBackoff time.Duration `envconfig:"STOREFRONT_PAYMENTS_BASE_BACKOFF" default:"200ms"`
	MaxBackoff  time.Duration `envconfig:"STOREFRONT_PAYMENTS_MAX_BACKOFF" default:"2s"`
}

// HTTPConfig covers the public API surface: CORS and checkout throttling.
type HTTPConfig struct {
	AllowedOrigins     []string      `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	CheckoutRateLimit  int64         `envconfig:"STOREFRONT_CHECKOUT_RATE_LIMIT" default:"10"`
	CheckoutRateWindow time.Duration `envconfig:"STOREFRONT_CHECKOUT_RATE_WINDOW" default:"1m"`
	ReadHeaderTimeout  time.Duration `envconfig:"STOREFRONT_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout    time.Duration `envconfig:"STOREFRONT_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = DriverSQLite
		db.DSN = defaultSQLiteDSN
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
