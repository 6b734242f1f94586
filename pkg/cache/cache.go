package cache

import (
	"context"
	"time"
)

// Cache defines the interface for caching services.
type Cache interface {
	// Get returns "" and no error when key does not exist.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	// Increment adds one to the counter at key and returns the new value. The
	// counter expires window after its first increment.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Close() error
}
