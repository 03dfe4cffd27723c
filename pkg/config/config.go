package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Field         FieldConfig
	Eventing      EventingConfig
	GoogleMaps    GoogleMapsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var err error
	if c.Field.DefaultVisitRadiusMeters <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvFieldVisitRadius))
	}
	if c.Field.DiscoveryMultiplier < 1 {
		err = multierr.Append(err, fmt.Errorf("%s must be >= 1", EnvFieldDiscoveryMultiplier))
	}
	if c.Field.PlacesTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvFieldPlacesTimeout))
	}
	if c.Field.LockTTL <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s must be positive", EnvFieldLockTTL))
	}
	return err
}

type AppConfig struct {
	Env          string `envconfig:"FIELDOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"FIELDOPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FIELDOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FIELDOPS_LOG_WARN_STACK" default:"false"`
	// LogFormat is json or console.
	LogFormat string `envconfig:"FIELDOPS_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"FIELDOPS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FIELDOPS_SERVICE_KIND" default:"api"`
	// MetricsAddr exposes /metrics from the background workers; empty disables it.
	MetricsAddr string `envconfig:"FIELDOPS_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"FIELDOPS_DB_DSN"`
	Driver string `envconfig:"FIELDOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FIELDOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"FIELDOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FIELDOPS_DB_USER"`
	LegacyPassword string `envconfig:"FIELDOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"FIELDOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"FIELDOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FIELDOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FIELDOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FIELDOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FIELDOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"FIELDOPS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
	LogQueries         bool          `envconfig:"FIELDOPS_DB_LOG_QUERIES" default:"false"`
	TxRetries          int           `envconfig:"FIELDOPS_DB_TX_RETRIES" default:"2"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FIELDOPS_REDIS_URL"`
	Address      string        `envconfig:"FIELDOPS_REDIS_ADDR"`
	Password     string        `envconfig:"FIELDOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"FIELDOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FIELDOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FIELDOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FIELDOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FIELDOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FIELDOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Configured reports whether any redis endpoint was supplied.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret                 string `envconfig:"FIELDOPS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"FIELDOPS_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"FIELDOPS_JWT_EXPIRATION_MINUTES" default:"1440"`
	RefreshTokenTTLMinutes int    `envconfig:"FIELDOPS_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"FIELDOPS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"FIELDOPS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"FIELDOPS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"FIELDOPS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FIELDOPS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"FIELDOPS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit int           `envconfig:"FIELDOPS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"FIELDOPS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	// APIRequests per APIWindow for each authenticated representative. Zero disables it.
	APIRequests int           `envconfig:"FIELDOPS_AUTH_RATE_LIMIT_API_REQUESTS" default:"600"`
	APIWindow   time.Duration `envconfig:"FIELDOPS_AUTH_RATE_LIMIT_API_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite     bool `envconfig:"FIELDOPS_USE_SQLITE" default:"false"`
	AutoMigrate   bool `envconfig:"FIELDOPS_AUTO_MIGRATE" default:"false"`
	UseLocalLocks bool `envconfig:"FIELDOPS_USE_LOCAL_LOCKS" default:"false"`
}

// FieldConfig tunes market sessions, geofencing and nearby discovery.
type FieldConfig struct {
	DefaultVisitRadiusMeters int           `envconfig:"FIELDOPS_FIELD_VISIT_RADIUS_METERS" default:"500"`
	DiscoveryMultiplier      float64       `envconfig:"FIELDOPS_FIELD_DISCOVERY_MULTIPLIER" default:"2"`
	PlacesTimeout            time.Duration `envconfig:"FIELDOPS_FIELD_PLACES_TIMEOUT" default:"3s"`
	PlacesIncludedTypes      []string      `envconfig:"FIELDOPS_FIELD_PLACES_INCLUDED_TYPES" default:"store"`
	PlacesMaxResults         int           `envconfig:"FIELDOPS_FIELD_PLACES_MAX_RESULTS" default:"20"`
	PlacesRatePerSecond      float64       `envconfig:"FIELDOPS_FIELD_PLACES_RATE_PER_SECOND" default:"5"`
	PlacesBurst              int           `envconfig:"FIELDOPS_FIELD_PLACES_BURST" default:"10"`
	LockTTL                  time.Duration `envconfig:"FIELDOPS_FIELD_LOCK_TTL" default:"15s"`
	StaleVisitAfter          time.Duration `envconfig:"FIELDOPS_FIELD_STALE_VISIT_AFTER" default:"8h"`
	IdempotencyTTL           time.Duration `envconfig:"FIELDOPS_FIELD_IDEMPOTENCY_TTL" default:"24h"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FIELDOPS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"FIELDOPS_GOOGLE_MAPS_API_KEY"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FIELDOPS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FIELDOPS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FIELDOPS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	FieldEventsTopic        string `envconfig:"FIELDOPS_PUBSUB_FIELD_EVENTS_TOPIC" default:"fo-field-events"`
	FieldEventsSubscription string `envconfig:"FIELDOPS_PUBSUB_FIELD_EVENTS_SUBSCRIPTION" default:"fo-field-events-analytics"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"FIELDOPS_BIGQUERY_DATASET" default:"fieldops"`
	FieldEventsTable string `envconfig:"FIELDOPS_BIGQUERY_FIELD_EVENTS_TABLE" default:"field_events"`
	// CreateTable provisions a missing field events table instead of failing startup.
	CreateTable bool `envconfig:"FIELDOPS_BIGQUERY_CREATE_TABLE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FIELDOPS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FIELDOPS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FIELDOPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FIELDOPS_OUTBOX_RETENTION" default:"720h"`
	// DeadLetterRetention keeps failed events around longer for remediation.
	DeadLetterRetention time.Duration `envconfig:"FIELDOPS_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FIELDOPS_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"FIELDOPS_CRON_LOCK_TTL" default:"10m"`
	// RetentionEvery spaces out outbox purges; the stale visit scan runs every cycle.
	RetentionEvery time.Duration `envconfig:"FIELDOPS_CRON_RETENTION_EVERY" default:"24h"`
	JobTimeout     time.Duration `envconfig:"FIELDOPS_CRON_JOB_TIMEOUT" default:"5m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = "file:fieldops.db?cache=shared"
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
