// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/hrtlevels/hrtlevels/internal/database"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

// Config holds configuration shared by the API and worker binaries.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	Port     string `mapstructure:"APP_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Storage  string `mapstructure:"STORAGE"`

	// WorkerPort serves the worker's health and metrics endpoints.
	WorkerPort string `mapstructure:"WORKER_PORT"`

	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            int           `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSL_MODE"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBMigrate         bool          `mapstructure:"DB_MIGRATE"`

	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	DefaultLocale string `mapstructure:"DEFAULT_LOCALE"`

	// AdminToken guards /v1/admin. Empty disables the admin endpoints.
	AdminToken string `mapstructure:"ADMIN_TOKEN"`
	RequireTLS bool   `mapstructure:"REQUIRE_TLS"`

	OTelEnabled     bool    `mapstructure:"OTEL_ENABLED"`
	OTLPEndpoint    string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSampleRatio float64 `mapstructure:"OTEL_SAMPLE_RATIO"`

	PubSubProjectID    string `mapstructure:"PUBSUB_PROJECT_ID"`
	PubSubTopic        string `mapstructure:"PUBSUB_TOPIC"`
	PubSubSubscription string `mapstructure:"PUBSUB_SUBSCRIPTION"`

	SnapshotInterval     time.Duration `mapstructure:"SNAPSHOT_INTERVAL"`
	RefreshConcurrency   int           `mapstructure:"REFRESH_CONCURRENCY"`
	RefreshRatePerSecond float64       `mapstructure:"REFRESH_RATE_PER_SECOND"`
	RefreshTimeout       time.Duration `mapstructure:"REFRESH_TIMEOUT"`
	FlagCacheTTL         time.Duration `mapstructure:"FLAG_CACHE_TTL"`
}

var defaults = map[string]any{
	"APP_ENV":                     "development",
	"APP_PORT":                    "8080",
	"WORKER_PORT":                 "8081",
	"LOG_LEVEL":                   "info",
	"STORAGE":                     StoragePostgres,
	"DB_HOST":                     "localhost",
	"DB_PORT":                     5432,
	"DB_USER":                     "hrtlevels",
	"DB_PASSWORD":                 "localdev",
	"DB_NAME":                     "hrtlevels",
	"DB_SSL_MODE":                 "disable",
	"DB_MAX_OPEN_CONNS":           10,
	"DB_MAX_IDLE_CONNS":           5,
	"DB_CONN_MAX_LIFETIME":        "5m",
	"DB_MIGRATE":                  false,
	"JWT_ISSUER":                  "https://api.hrtlevels.app",
	"JWT_AUDIENCE":                "hrtlevels-api",
	"DEFAULT_LOCALE":              "en-US",
	"REQUIRE_TLS":                 false,
	"OTEL_ENABLED":                false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"OTEL_SAMPLE_RATIO":           1.0,
	"PUBSUB_TOPIC":                "hrtlevels-jobs",
	"PUBSUB_SUBSCRIPTION":         "hrtlevels-jobs-worker",
	"SNAPSHOT_INTERVAL":           "15m",
	"REFRESH_CONCURRENCY":         4,
	"REFRESH_RATE_PER_SECOND":     20.0,
	"REFRESH_TIMEOUT":             "10s",
	"FLAG_CACHE_TTL":              "1m",
}

// Load reads configuration. Variables from the given .env files are added
// to the environment without overriding it; missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range []string{"DATABASE_URL", "JWT_SIGNING_KEY", "ADMIN_TOKEN", "PUBSUB_PROJECT_ID"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	if cfg.JWTSigningKey == "" && !cfg.IsProduction() {
		cfg.JWTSigningKey = devSigningKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesDevSigningKey reports whether tokens are signed with the built-in
// development key.
func (c *Config) UsesDevSigningKey() bool {
	return c.JWTSigningKey == devSigningKey
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage))
	}
	if c.IsProduction() {
		if c.JWTSigningKey == "" {
			errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
		}
		if len(c.JWTSigningKey) < 32 {
			errs = append(errs, errors.New("JWT_SIGNING_KEY must be at least 32 characters in production"))
		}
		if c.AdminToken != "" && len(c.AdminToken) < 32 {
			errs = append(errs, errors.New("ADMIN_TOKEN must be at least 32 characters in production"))
		}
		if c.Storage == StorageMemory {
			errs = append(errs, errors.New("STORAGE=memory is not allowed in production"))
		}
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT out of range: %d", c.DBPort))
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxOpenConns > 1000 {
		errs = append(errs, fmt.Errorf("DB_MAX_OPEN_CONNS must be between 1 and 1000, got %d", c.DBMaxOpenConns))
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS, got %d", c.DBMaxIdleConns))
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1, got %g", c.OTelSampleRatio))
	}
	if c.SnapshotInterval < time.Minute {
		errs = append(errs, fmt.Errorf("SNAPSHOT_INTERVAL must be at least 1m, got %s", c.SnapshotInterval))
	}
	if c.RefreshConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_CONCURRENCY must be positive, got %d", c.RefreshConcurrency))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return errors.Join(errs...)
}

// Database returns the connection settings for the database package.
func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Database:        c.DBName,
		SSLMode:         c.DBSSLMode,
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	}
}

// ConnectionString returns DATABASE_URL when set, otherwise a URL built
// from the DB_* variables.
func (c *Config) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.Database().ConnectionString()
}

// Level returns the configured zerolog level.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// PubSubEnabled reports whether a Pub/Sub project is configured.
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != ""
}
