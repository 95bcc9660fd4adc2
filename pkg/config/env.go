package config

const EnvPrefix = "STOCKMON"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "STOCKMON_APP_ENV"
	EnvPort     = "STOCKMON_APP_PORT"
	EnvLogLevel = "STOCKMON_LOG_LEVEL"

	EnvDBDSN    = "STOCKMON_DB_DSN"
	EnvDBDriver = "STOCKMON_DB_DRIVER"
	EnvDBHost   = "STOCKMON_DB_HOST"
	EnvDBPort   = "STOCKMON_DB_PORT"
	EnvDBUser   = "STOCKMON_DB_USER"
	EnvDBPass   = "STOCKMON_DB_PASSWORD"
	EnvDBName   = "STOCKMON_DB_NAME"

	EnvRedisURL = "STOCKMON_REDIS_URL"

	EnvReservationHold       = "STOCKMON_RESERVATION_HOLD"
	EnvReservationMaxRetries = "STOCKMON_RESERVATION_MAX_RETRIES"

	EnvAlertsLowThreshold      = "STOCKMON_ALERTS_LOW_THRESHOLD"
	EnvAlertsCriticalThreshold = "STOCKMON_ALERTS_CRITICAL_THRESHOLD"
	EnvAlertsSuppressRepeats   = "STOCKMON_ALERTS_SUPPRESS_REPEATS"

	EnvCronInterval = "STOCKMON_CRON_INTERVAL"

	EnvGCPProjectID      = "STOCKMON_GCP_PROJECT_ID"
	EnvPubSubAlertsTopic = "STOCKMON_PUBSUB_STOCK_ALERTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
