package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Flag store backends.
const (
	FlagStoreFile  = "file"
	FlagStoreRedis = "redis"
)

// Config holds all configuration for the session agent.
type Config struct {
	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`

	// Startup resolution
	StartupTimeout     time.Duration `mapstructure:"STARTUP_TIMEOUT"`
	ProfileReadTimeout time.Duration `mapstructure:"PROFILE_READ_TIMEOUT"`

	// Presence tracking
	PresenceRetryDelay        time.Duration `mapstructure:"PRESENCE_RETRY_DELAY"`
	PresenceReconcileInterval time.Duration `mapstructure:"PRESENCE_RECONCILE_INTERVAL"`
	PresenceWriteTimeout      time.Duration `mapstructure:"PRESENCE_WRITE_TIMEOUT"`

	// Local flag store
	FlagStoreBackend string `mapstructure:"FLAG_STORE_BACKEND"` // "file" or "redis"
	FlagStorePath    string `mapstructure:"FLAG_STORE_PATH"`
	RedisAddr        string `mapstructure:"REDIS_ADDR"`
	RedisPassword    string `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int    `mapstructure:"REDIS_DB"`

	// Host bridge
	BridgePort          string  `mapstructure:"BRIDGE_PORT"`
	BridgeAllowedOrigin string  `mapstructure:"BRIDGE_ALLOWED_ORIGIN"`
	BridgeRateLimit     float64 `mapstructure:"BRIDGE_RATE_LIMIT"` // requests per second, 0 disables
	GinMode             string  `mapstructure:"GIN_MODE"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogMode  string `mapstructure:"LOG_MODE"` // "development" or "production"
}

var keys = []string{
	"FIREBASE_PROJECT_ID",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
	"STARTUP_TIMEOUT",
	"PROFILE_READ_TIMEOUT",
	"PRESENCE_RETRY_DELAY",
	"PRESENCE_RECONCILE_INTERVAL",
	"PRESENCE_WRITE_TIMEOUT",
	"FLAG_STORE_BACKEND",
	"FLAG_STORE_PATH",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"REDIS_DB",
	"BRIDGE_PORT",
	"BRIDGE_ALLOWED_ORIGIN",
	"BRIDGE_RATE_LIMIT",
	"GIN_MODE",
	"LOG_LEVEL",
	"LOG_MODE",
}

// LoadConfig loads configuration from environment variables using Viper.
// If CONFIG_FILE is set, that YAML file is read first and environment
// variables override it.
func LoadConfig() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	v.SetDefault("STARTUP_TIMEOUT", 5*time.Second)
	v.SetDefault("PROFILE_READ_TIMEOUT", 4*time.Second)
	v.SetDefault("PRESENCE_RETRY_DELAY", time.Second)
	v.SetDefault("PRESENCE_RECONCILE_INTERVAL", 3*time.Second)
	v.SetDefault("PRESENCE_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("FLAG_STORE_BACKEND", FlagStoreFile)
	v.SetDefault("FLAG_STORE_PATH", "minesim-flags.yaml")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BRIDGE_PORT", "8787")
	v.SetDefault("BRIDGE_RATE_LIMIT", 20)
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MODE", "production")

	for _, key := range keys {
		v.BindEnv(key)
	}
	v.BindEnv("CONFIG_FILE")

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required")
	}
	if c.StartupTimeout <= 0 {
		return errors.New("STARTUP_TIMEOUT must be positive")
	}
	if c.ProfileReadTimeout <= 0 {
		return errors.New("PROFILE_READ_TIMEOUT must be positive")
	}
	if c.PresenceRetryDelay <= 0 || c.PresenceReconcileInterval <= 0 || c.PresenceWriteTimeout <= 0 {
		return errors.New("presence durations must be positive")
	}

	switch c.FlagStoreBackend {
	case FlagStoreFile:
		if c.FlagStorePath == "" {
			return errors.New("FLAG_STORE_PATH is required for the file flag store")
		}
	case FlagStoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis flag store")
		}
	default:
		return fmt.Errorf("FLAG_STORE_BACKEND must be %q or %q, got %q", FlagStoreFile, FlagStoreRedis, c.FlagStoreBackend)
	}

	if c.BridgeRateLimit < 0 {
		return errors.New("BRIDGE_RATE_LIMIT cannot be negative")
	}
	return nil
}
