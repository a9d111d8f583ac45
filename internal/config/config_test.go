package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":3002", cfg.HTTPAddr)
	assert.Equal(t, 0.6, cfg.MatchThreshold)
	assert.Equal(t, 128, cfg.DescriptorDimension)
	assert.Equal(t, StoreFile, cfg.StoreBackend)
	assert.Equal(t, 10*time.Second, cfg.ExtractorTimeout)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoadFromEnvironmentAndFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FACEVERIFY_MATCH_THRESHOLD=0.5\nFACEVERIFY_HTTP_ADDR=:9000\n"), 0o600))
	t.Setenv("FACEVERIFY_HTTP_ADDR", ":8080")
	t.Setenv("FACEVERIFY_STORE_BACKEND", "redis")
	t.Setenv("FACEVERIFY_REDIS_ADDR", "localhost:6379")
	t.Setenv("FACEVERIFY_JWT_SECRET", "s3cret")
	// godotenv sets variables it loads; make sure they are cleaned up.
	t.Setenv("FACEVERIFY_MATCH_THRESHOLD", "")
	require.NoError(t, os.Unsetenv("FACEVERIFY_MATCH_THRESHOLD"))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr, "environment wins over the file")
	assert.Equal(t, 0.5, cfg.MatchThreshold)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.True(t, cfg.AuthEnabled())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			HTTPAddr:            ":3002",
			ExtractorAddr:       "localhost:50051",
			MatchThreshold:      0.6,
			DescriptorDimension: 128,
			StoreBackend:        StoreFile,
			DataDir:             "faces",
		}
	}

	valid := base()
	require.NoError(t, valid.Validate())

	cases := map[error]func(c *Config){
		ErrInvalidHTTPAddr:      func(c *Config) { c.HTTPAddr = "" },
		ErrInvalidExtractorAddr: func(c *Config) { c.ExtractorAddr = "" },
		ErrInvalidThreshold:     func(c *Config) { c.MatchThreshold = 0 },
		ErrInvalidDimension:     func(c *Config) { c.DescriptorDimension = -1 },
		ErrInvalidTimeout:       func(c *Config) { c.ExtractorTimeout = -time.Second },
		ErrInvalidStoreBackend:  func(c *Config) { c.StoreBackend = "s3" },
		ErrInvalidDataDir:       func(c *Config) { c.DataDir = "" },
		ErrMissingRedisAddr:     func(c *Config) { c.StoreBackend = StoreRedis },
		ErrMissingDatabaseDSN:   func(c *Config) { c.StoreBackend = StorePostgres },
	}
	for want, mutate := range cases {
		c := base()
		mutate(&c)
		assert.ErrorIs(t, c.Validate(), want)
	}
}
