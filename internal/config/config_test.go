package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "minesim-dev")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "minesim-dev", cfg.FirebaseProjectID)
	assert.Equal(t, 5*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 4*time.Second, cfg.ProfileReadTimeout)
	assert.Equal(t, time.Second, cfg.PresenceRetryDelay)
	assert.Equal(t, 3*time.Second, cfg.PresenceReconcileInterval)
	assert.Equal(t, FlagStoreFile, cfg.FlagStoreBackend)
	assert.Equal(t, "8787", cfg.BridgePort)
	assert.Equal(t, float64(20), cfg.BridgeRateLimit)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "minesim-dev")
	t.Setenv("STARTUP_TIMEOUT", "2500ms")
	t.Setenv("FLAG_STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.StartupTimeout)
	assert.Equal(t, FlagStoreRedis, cfg.FlagStoreBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := "FIREBASE_PROJECT_ID: from-file\nPRESENCE_RECONCILE_INTERVAL: 7s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.FirebaseProjectID)
	assert.Equal(t, 7*time.Second, cfg.PresenceReconcileInterval)
}

func TestLoadRequiresProjectID(t *testing.T) {
	t.Setenv("FIREBASE_PROJECT_ID", "")

	_, err := load(viper.New())
	assert.EqualError(t, err, "FIREBASE_PROJECT_ID is required")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			FirebaseProjectID:         "p",
			StartupTimeout:            time.Second,
			ProfileReadTimeout:        time.Second,
			PresenceRetryDelay:        time.Second,
			PresenceReconcileInterval: time.Second,
			PresenceWriteTimeout:      time.Second,
			FlagStoreBackend:          FlagStoreFile,
			FlagStorePath:             "flags.yaml",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero timeout", mutate: func(c *Config) { c.StartupTimeout = 0 }, wantErr: "STARTUP_TIMEOUT must be positive"},
		{name: "unknown backend", mutate: func(c *Config) { c.FlagStoreBackend = "sqlite" }, wantErr: `FLAG_STORE_BACKEND must be "file" or "redis", got "sqlite"`},
		{name: "redis without addr", mutate: func(c *Config) { c.FlagStoreBackend = FlagStoreRedis }, wantErr: "REDIS_ADDR is required for the redis flag store"},
		{name: "negative rate", mutate: func(c *Config) { c.BridgeRateLimit = -1 }, wantErr: "BRIDGE_RATE_LIMIT cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}
