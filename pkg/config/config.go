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
	FeatureFlags FeatureFlagsConfig
	Reservation  ReservationConfig
	Alerts       AlertsConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Alerts.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKMON_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKMON_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKMON_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKMON_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKMON_SERVICE_KIND" default:"api"`

	AllowedOrigins []string `envconfig:"STOCKMON_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	RateLimitWindow  time.Duration `envconfig:"STOCKMON_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP   int           `envconfig:"STOCKMON_RATE_LIMIT_PER_IP" default:"600"`
	RateLimitPerUser int           `envconfig:"STOCKMON_RATE_LIMIT_PER_USER" default:"120"`

	IdempotencyTTL         time.Duration `envconfig:"STOCKMON_IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyInFlightTTL time.Duration `envconfig:"STOCKMON_IDEMPOTENCY_IN_FLIGHT_TTL" default:"30s"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKMON_DB_DSN"`
	Driver string `envconfig:"STOCKMON_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKMON_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKMON_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKMON_DB_USER"`
	LegacyPassword string `envconfig:"STOCKMON_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKMON_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKMON_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKMON_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKMON_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKMON_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKMON_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"STOCKMON_DB_LOCK_TIMEOUT" default:"3s"`

	SlowQueryThreshold time.Duration `envconfig:"STOCKMON_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite store.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKMON_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKMON_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKMON_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKMON_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKMON_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKMON_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKMON_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKMON_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKMON_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"STOCKMON_AUTO_MIGRATE" default:"false"`
	RequireIdemKey bool `envconfig:"STOCKMON_REQUIRE_IDEMPOTENCY_KEY" default:"false"`
}

// ReservationConfig controls hold duration and write-conflict retries.
type ReservationConfig struct {
	HoldDuration     time.Duration `envconfig:"STOCKMON_RESERVATION_HOLD" default:"15m"`
	MaxRetries       uint64        `envconfig:"STOCKMON_RESERVATION_MAX_RETRIES" default:"3"`
	RetryBaseBackoff time.Duration `envconfig:"STOCKMON_RESERVATION_RETRY_BACKOFF" default:"25ms"`
	RetryMaxJitter   time.Duration `envconfig:"STOCKMON_RESERVATION_RETRY_JITTER" default:"10ms"`
}

// AlertsConfig holds the fallback thresholds used when a product has no
// alert configuration of its own.
type AlertsConfig struct {
	DefaultLowThreshold      int  `envconfig:"STOCKMON_ALERTS_LOW_THRESHOLD" default:"10"`
	DefaultCriticalThreshold int  `envconfig:"STOCKMON_ALERTS_CRITICAL_THRESHOLD" default:"5"`
	SuppressRepeats          bool `envconfig:"STOCKMON_ALERTS_SUPPRESS_REPEATS" default:"true"`
	AutoResolve              bool `envconfig:"STOCKMON_ALERTS_AUTO_RESOLVE" default:"true"`
}

func (a AlertsConfig) validate() error {
	if a.DefaultCriticalThreshold < 0 || a.DefaultLowThreshold < 0 {
		return fmt.Errorf("alert thresholds must be non-negative")
	}
	if a.DefaultCriticalThreshold > a.DefaultLowThreshold {
		return fmt.Errorf("%s must not exceed %s", EnvAlertsCriticalThreshold, EnvAlertsLowThreshold)
	}
	return nil
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"STOCKMON_CRON_INTERVAL" default:"1m"`
	LockTTL             time.Duration `envconfig:"STOCKMON_CRON_LOCK_TTL" default:"5m"`
	JobTimeout          time.Duration `envconfig:"STOCKMON_CRON_JOB_TIMEOUT" default:"2m"`
	ExpiryBatchSize     int           `envconfig:"STOCKMON_CRON_EXPIRY_BATCH_SIZE" default:"500"`
	AlertScanEnabled    bool          `envconfig:"STOCKMON_CRON_ALERT_SCAN_ENABLED" default:"true"`
	OutboxRetentionDays int           `envconfig:"STOCKMON_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxStallAfter    time.Duration `envconfig:"STOCKMON_CRON_OUTBOX_STALL_AFTER" default:"15m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKMON_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOCKMON_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOCKMON_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	StockAlertsTopic string `envconfig:"STOCKMON_PUBSUB_STOCK_ALERTS_TOPIC" default:"stock-alerts"`
	StockEventsTopic string `envconfig:"STOCKMON_PUBSUB_STOCK_EVENTS_TOPIC"`

	// PaymentsSubscription feeds payment outcomes to the payments worker.
	PaymentsSubscription string        `envconfig:"STOCKMON_PUBSUB_PAYMENTS_SUBSCRIPTION" default:"stock-payments"`
	ProcessedEventTTL    time.Duration `envconfig:"STOCKMON_PUBSUB_PROCESSED_EVENT_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOCKMON_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOCKMON_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOCKMON_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
