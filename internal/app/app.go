// Package app holds the wiring shared by the server and reminder commands.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/subtracker/internal/config"
	"github.com/example/subtracker/internal/crypto"
	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/pkg/cache"
)

// NewLogger returns a production logger in release mode and a development logger otherwise.
func NewLogger(release bool) (*zap.Logger, error) {
	if release {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// NewCache connects to Redis when REDIS_ADDRESS is set and falls back to a
// process-local cache otherwise.
func NewCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	if cfg.RedisAddress == "" {
		logger.Warn("REDIS_ADDRESS is not set, using an in-process cache")
		return cache.NewMemoryCache(time.Now), nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	redisCache, err := cache.NewRedisCache(pingCtx, cache.NewRedisCacheConfig{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, err
	}
	return redisCache, nil
}

// NewNotesCipher returns nil when ENCRYPTION_KEY is unset, which stores notes in plain text.
func NewNotesCipher(cfg *config.Config, logger *zap.Logger) (db.NotesCipher, error) {
	if cfg.EncryptionKey == "" {
		logger.Warn("ENCRYPTION_KEY is not set, subscription notes are stored unencrypted")
		return nil, nil
	}
	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	return cipher, nil
}
