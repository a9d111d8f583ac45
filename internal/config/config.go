// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. FACEVERIFY_HTTP_ADDR.
const Prefix = "FACEVERIFY"

// Store backends.
const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config validation errors
var (
	ErrInvalidHTTPAddr      = errors.New("http_addr cannot be empty")
	ErrInvalidExtractorAddr = errors.New("extractor_addr cannot be empty")
	ErrInvalidStoreBackend  = errors.New("store_backend must be file, redis, postgres or memory")
	ErrInvalidDataDir       = errors.New("data_dir cannot be empty for the file store")
	ErrMissingRedisAddr     = errors.New("redis_addr is required for the redis store")
	ErrMissingDatabaseDSN   = errors.New("database_dsn is required for the postgres store")
	ErrInvalidThreshold     = errors.New("match_threshold must be positive")
	ErrInvalidDimension     = errors.New("descriptor_dimension must not be negative")
	ErrInvalidTimeout       = errors.New("extractor_timeout must not be negative")
)

// Config holds all runtime settings.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":3002"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`

	ExtractorAddr    string        `envconfig:"EXTRACTOR_ADDR" default:"localhost:50051"`
	ExtractorWorkers int           `envconfig:"EXTRACTOR_WORKERS" default:"0"`
	ExtractorTimeout time.Duration `envconfig:"EXTRACTOR_TIMEOUT" default:"10s"`

	MatchThreshold      float64 `envconfig:"MATCH_THRESHOLD" default:"0.6"`
	DescriptorDimension int     `envconfig:"DESCRIPTOR_DIMENSION" default:"128"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"file"`
	DataDir      string `envconfig:"DATA_DIR" default:"faces"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	RedisKey     string `envconfig:"REDIS_KEY" default:"faceverify:reference"`
	DatabaseDSN  string `envconfig:"DATABASE_DSN"`

	ResultTTL time.Duration `envconfig:"RESULT_TTL" default:"10m"`

	JWTSecret   string `envconfig:"JWT_SECRET"`
	JWTAudience string `envconfig:"JWT_AUDIENCE"`
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return ErrInvalidHTTPAddr
	}
	if c.ExtractorAddr == "" {
		return ErrInvalidExtractorAddr
	}
	if c.MatchThreshold <= 0 {
		return ErrInvalidThreshold
	}
	if c.DescriptorDimension < 0 {
		return ErrInvalidDimension
	}
	if c.ExtractorTimeout < 0 {
		return ErrInvalidTimeout
	}

	switch c.StoreBackend {
	case StoreFile:
		if c.DataDir == "" {
			return ErrInvalidDataDir
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return ErrMissingDatabaseDSN
		}
	case StoreMemory:
	default:
		return ErrInvalidStoreBackend
	}
	return nil
}

// AuthEnabled reports whether the API requires bearer tokens.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}
