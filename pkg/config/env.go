package config

// EnvPrefix is handed to envconfig; every field tag carries the full name.
const EnvPrefix = "PICKUP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "PICKUP_APP_ENV"
	EnvPort      = "PICKUP_APP_PORT"
	EnvDBDSN     = "PICKUP_DB_DSN"
	EnvDBHost    = "PICKUP_DB_HOST"
	EnvDBUser    = "PICKUP_DB_USER"
	EnvDBName    = "PICKUP_DB_NAME"
	EnvRedisURL  = "PICKUP_REDIS_URL"
	EnvJWTSecret = "PICKUP_JWT_SECRET"
	EnvJWTIssuer = "PICKUP_JWT_ISSUER"
	EnvOTPTTL    = "PICKUP_OTP_TTL"
	EnvFixedOTP  = "PICKUP_ORDER_FIXED_REISSUE_OTP"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
