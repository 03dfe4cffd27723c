package config

const EnvPrefix = "FIELDOPS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "FIELDOPS_APP_ENV"
	EnvPort      = "FIELDOPS_APP_PORT"
	EnvLogLevel  = "FIELDOPS_LOG_LEVEL"
	EnvUseSQLite = "FIELDOPS_USE_SQLITE"

	EnvDBDSN  = "FIELDOPS_DB_DSN"
	EnvDBHost = "FIELDOPS_DB_HOST"
	EnvDBUser = "FIELDOPS_DB_USER"
	EnvDBName = "FIELDOPS_DB_NAME"

	EnvRedisURL = "FIELDOPS_REDIS_URL"

	EnvJWTSecret              = "FIELDOPS_JWT_SECRET"
	EnvJWTIssuer              = "FIELDOPS_JWT_ISSUER"
	EnvJWTExpMins             = "FIELDOPS_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "FIELDOPS_REFRESH_TOKEN_TTL_MINUTES"

	EnvFieldVisitRadius         = "FIELDOPS_FIELD_VISIT_RADIUS_METERS"
	EnvFieldDiscoveryMultiplier = "FIELDOPS_FIELD_DISCOVERY_MULTIPLIER"
	EnvFieldPlacesTimeout       = "FIELDOPS_FIELD_PLACES_TIMEOUT"
	EnvFieldPlacesTypes         = "FIELDOPS_FIELD_PLACES_INCLUDED_TYPES"
	EnvFieldLockTTL             = "FIELDOPS_FIELD_LOCK_TTL"

	EnvPubSubFieldEventsTopic = "FIELDOPS_PUBSUB_FIELD_EVENTS_TOPIC"
	EnvPubSubFieldEventsSub   = "FIELDOPS_PUBSUB_FIELD_EVENTS_SUBSCRIPTION"
)

// legacyDBEnvVars are required when no DSN is given.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
