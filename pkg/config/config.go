package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CANTEEN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
	AppEnvTest = "test"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Store        StoreConfig
	Retry        RetryConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite && cfg.DB.DSN == "" {
		return nil, fmt.Errorf("CANTEEN_DB_DSN is required unless CANTEEN_USE_SQLITE is set")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CANTEEN_APP_ENV" required:"true"`
	Port         string `envconfig:"CANTEEN_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CANTEEN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CANTEEN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN             string        `envconfig:"CANTEEN_DB_DSN"`
	MaxOpenConns    int           `envconfig:"CANTEEN_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"CANTEEN_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CANTEEN_DB_CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"CANTEEN_DB_CONN_MAX_IDLE_TIME" default:"5m"`
}

type RedisConfig struct {
	Addr     string `envconfig:"CANTEEN_REDIS_ADDR"`
	Password string `envconfig:"CANTEEN_REDIS_PASSWORD"`
	DB       int    `envconfig:"CANTEEN_REDIS_DB" default:"0"`
	Channel  string `envconfig:"CANTEEN_REDIS_CHANNEL" default:"canteen.store.changes"`
}

// Enabled reports whether the cross-instance change bus is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type StoreConfig struct {
	// OpTimeout bounds every individual store call so a slow database never
	// hangs a caller.
	OpTimeout time.Duration `envconfig:"CANTEEN_STORE_OP_TIMEOUT" default:"5s"`
	// TxTimeout bounds a whole transaction body, retries excluded.
	TxTimeout time.Duration `envconfig:"CANTEEN_STORE_TX_TIMEOUT" default:"10s"`
}

type RetryConfig struct {
	MaxAttempts    int           `envconfig:"CANTEEN_RETRY_MAX_ATTEMPTS" default:"5"`
	InitialBackoff time.Duration `envconfig:"CANTEEN_RETRY_INITIAL_BACKOFF" default:"50ms"`
	MaximumBackoff time.Duration `envconfig:"CANTEEN_RETRY_MAXIMUM_BACKOFF" default:"2s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CANTEEN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CANTEEN_AUTO_MIGRATE" default:"false"`
}
