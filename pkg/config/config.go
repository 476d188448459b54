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
	OTP          OTPConfig
	SMS          SMSConfig
	Order        OrderConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PICKUP_APP_ENV" required:"true"`
	Port         string `envconfig:"PICKUP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PICKUP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PICKUP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PICKUP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PICKUP_DB_DSN"`
	Driver string `envconfig:"PICKUP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PICKUP_DB_HOST"`
	LegacyPort     int    `envconfig:"PICKUP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PICKUP_DB_USER"`
	LegacyPassword string `envconfig:"PICKUP_DB_PASSWORD"`
	LegacyName     string `envconfig:"PICKUP_DB_NAME"`
	LegacySSLMode  string `envconfig:"PICKUP_DB_SSLMODE" default:"disable"`

	MaxOpenConns       int           `envconfig:"PICKUP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns       int           `envconfig:"PICKUP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime    time.Duration `envconfig:"PICKUP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime    time.Duration `envconfig:"PICKUP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQueryThreshold time.Duration `envconfig:"PICKUP_DB_SLOW_QUERY_THRESHOLD" default:"100ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PICKUP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PICKUP_REDIS_ADDR"`
	Password     string        `envconfig:"PICKUP_REDIS_PASSWORD"`
	DB           int           `envconfig:"PICKUP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PICKUP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PICKUP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PICKUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PICKUP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PICKUP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PICKUP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PICKUP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PICKUP_JWT_EXPIRATION_MINUTES" default:"10080"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// OTPConfig tunes the phone login codes. Hashing parameters feed argon2id.
type OTPConfig struct {
	TTL              time.Duration `envconfig:"PICKUP_OTP_TTL" default:"5m"`
	MaxAttempts      int           `envconfig:"PICKUP_OTP_MAX_ATTEMPTS" default:"3"`
	ResendWindow     time.Duration `envconfig:"PICKUP_OTP_RESEND_WINDOW" default:"1m"`
	DailyLimit       int           `envconfig:"PICKUP_OTP_DAILY_LIMIT" default:"5"`
	ArgonMemoryKB    int           `envconfig:"PICKUP_OTP_ARGON_MEMORY_KB" default:"19456"`
	ArgonTime        int           `envconfig:"PICKUP_OTP_ARGON_TIME" default:"2"`
	ArgonParallelism int           `envconfig:"PICKUP_OTP_ARGON_PARALLELISM" default:"1"`
	ArgonSaltLen     int           `envconfig:"PICKUP_OTP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int           `envconfig:"PICKUP_OTP_ARGON_KEY_LEN" default:"32"`
}

type SMSConfig struct {
	BaseURL     string        `envconfig:"PICKUP_SMS_BASE_URL" default:"https://sms.example.invalid/sendsms"`
	Username    string        `envconfig:"PICKUP_SMS_USERNAME"`
	Password    string        `envconfig:"PICKUP_SMS_PASSWORD"`
	Source      string        `envconfig:"PICKUP_SMS_SOURCE"`
	EntityID    string        `envconfig:"PICKUP_SMS_ENTITY_ID"`
	TemplateID  string        `envconfig:"PICKUP_SMS_TEMPLATE_ID"`
	Header      string        `envconfig:"PICKUP_SMS_HEADER"`
	CountryCode string        `envconfig:"PICKUP_SMS_COUNTRY_CODE" default:"91"`
	Timeout     time.Duration `envconfig:"PICKUP_SMS_TIMEOUT" default:"10s"`
	MaxRetries  uint64        `envconfig:"PICKUP_SMS_MAX_RETRIES" default:"2"`
	RetryBase   time.Duration `envconfig:"PICKUP_SMS_RETRY_BASE" default:"200ms"`
}

type OrderConfig struct {
	TxTimeout        time.Duration `envconfig:"PICKUP_ORDER_TX_TIMEOUT" default:"8s"`
	FixedReissueOTP  bool          `envconfig:"PICKUP_ORDER_FIXED_REISSUE_OTP" default:"false"`
	InvoiceDueInDays int           `envconfig:"PICKUP_ORDER_INVOICE_DUE_DAYS" default:"7"`
	TimeZone         string        `envconfig:"PICKUP_ORDER_TIMEZONE" default:"Asia/Kolkata"`
}

// Location is the zone calendar days are cut in for reports and dashboards.
// Unknown or empty zones fall back to UTC.
func (o OrderConfig) Location() *time.Location {
	if o.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RateLimitConfig guards the OTP endpoints. The redis windows are shared by
// every API replica; the per-second limiter is local to one process.
type RateLimitConfig struct {
	AuthPerIPPerSecond   float64 `envconfig:"PICKUP_RATE_LIMIT_AUTH_IP_RPS" default:"2"`
	AuthPerIPBurst       int     `envconfig:"PICKUP_RATE_LIMIT_AUTH_IP_BURST" default:"10"`
	OTPPerIPPerMinute    int     `envconfig:"PICKUP_RATE_LIMIT_OTP_IP_PER_MINUTE" default:"20"`
	OTPPerPhonePerMinute int     `envconfig:"PICKUP_RATE_LIMIT_OTP_PHONE_PER_MINUTE" default:"5"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"PICKUP_CRON_INTERVAL" default:"1h"`
	JobTimeout            time.Duration `envconfig:"PICKUP_CRON_JOB_TIMEOUT" default:"5m"`
	LockTTL               time.Duration `envconfig:"PICKUP_CRON_LOCK_TTL" default:"55m"`
	OutboxRetention       time.Duration `envconfig:"PICKUP_CRON_OUTBOX_RETENTION" default:"720h"`
	DLQRetention          time.Duration `envconfig:"PICKUP_CRON_DLQ_RETENTION" default:"2160h"`
	NotificationRetention time.Duration `envconfig:"PICKUP_CRON_NOTIFICATION_RETENTION" default:"720h"`
	OTPRetention          time.Duration `envconfig:"PICKUP_CRON_OTP_RETENTION" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PICKUP_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"PICKUP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PICKUP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"PICKUP_PUBSUB_NOTIFICATION_TOPIC" default:"pickup-notification-events"`
	NotificationSubscription string `envconfig:"PICKUP_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"pickup-notification-events-sub"`
	OrdersTopic              string `envconfig:"PICKUP_PUBSUB_ORDERS_TOPIC" default:"pickup-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PICKUP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PICKUP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PICKUP_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
