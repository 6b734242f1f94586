package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/subtracker/pkg/cache"
)

// Throttle limits attempts per action and subject in fixed windows.
// It fails open when the cache is unavailable.
type Throttle struct {
	cache  cache.Cache
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewThrottle creates a Throttle allowing limit attempts per window. A
// non-positive limit disables throttling.
func NewThrottle(c cache.Cache, limit int, window time.Duration, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Throttle{cache: c, limit: limit, window: window, logger: logger}
}

// Allow records one attempt and returns ErrTooManyRequests once the limit is exceeded.
func (t *Throttle) Allow(ctx context.Context, action, subject string) error {
	if t == nil || t.cache == nil || t.limit <= 0 {
		return nil
	}
	key := fmt.Sprintf("auth-throttle:%s:%s", action, strings.ToLower(strings.TrimSpace(subject)))
	n, err := t.cache.Increment(ctx, key, t.window)
	if err != nil {
		t.logger.Warn("Throttle cache unavailable, allowing request", zap.String("action", action), zap.Error(err))
		return nil
	}
	if n > int64(t.limit) {
		return fmt.Errorf("%w: %s", ErrTooManyRequests, action)
	}
	return nil
}
