package config

// EnvPrefix is applied by envconfig on top of the explicit tags below.
const EnvPrefix = "etupan"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "ETUPAN_APP_ENV"
	EnvPort     = "ETUPAN_APP_PORT"
	EnvDBDSN    = "ETUPAN_DB_DSN"
	EnvDBHost   = "ETUPAN_DB_HOST"
	EnvDBUser   = "ETUPAN_DB_USER"
	EnvDBName   = "ETUPAN_DB_NAME"
	EnvRedisURL = "ETUPAN_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
