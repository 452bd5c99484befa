package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:storefront.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvLogLevel  = "STOREFRONT_LOG_LEVEL"
	EnvLogFormat = "STOREFRONT_LOG_FORMAT"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvUseSQLite = "STOREFRONT_USE_SQLITE"

	EnvStripeAPIKey = "STOREFRONT_STRIPE_API_KEY"
	EnvPayPalClient = "STOREFRONT_PAYPAL_CLIENT_ID"

	EnvTaxRates          = "STOREFRONT_CHECKOUT_TAX_RATES"
	EnvShippingFlatCents = "STOREFRONT_CHECKOUT_SHIPPING_FLAT_CENTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
