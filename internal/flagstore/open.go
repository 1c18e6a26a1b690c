package flagstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"minesim-session-go/internal/config"
)

// Open builds the Store selected by FLAG_STORE_BACKEND. The returned close
// function is never nil.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func() error, error) {
	switch cfg.FlagStoreBackend {
	case config.FlagStoreRedis:
		s, err := NewRedisStore(ctx, RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.FlagStoreFile:
		s, err := NewFileStore(cfg.FlagStorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown flag store backend %q", cfg.FlagStoreBackend)
	}
}
