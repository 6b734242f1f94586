package identity

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/pkg/cache"
)

// AdminDirectory implements core.UserDirectory with the Admin SDK alone, for
// processes that hold no web API key.
type AdminDirectory struct {
	admin AdminClient
}

func NewAdminDirectory(admin AdminClient) *AdminDirectory {
	return &AdminDirectory{admin: admin}
}

// EmailOf returns "" without error for users that no longer exist.
func (d *AdminDirectory) EmailOf(ctx context.Context, uid string) (string, error) {
	user, err := d.admin.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get user '%s': %w", uid, err)
	}
	return user.Email, nil
}

// CachedDirectory memoizes another directory's answers in a cache.
type CachedDirectory struct {
	next   core.UserDirectory
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDirectory(next core.UserDirectory, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDirectory{next: next, cache: c, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) EmailOf(ctx context.Context, uid string) (string, error) {
	key := "user-email:" + uid
	if email, err := d.cache.Get(ctx, key); err != nil {
		d.logger.Warn("Directory cache read failed", zap.String("userID", uid), zap.Error(err))
	} else if email != "" {
		return email, nil
	}

	email, err := d.next.EmailOf(ctx, uid)
	if err != nil || email == "" {
		return email, err
	}
	if err := d.cache.Set(ctx, key, email, d.ttl); err != nil {
		d.logger.Warn("Directory cache write failed", zap.String("userID", uid), zap.Error(err))
	}
	return email, nil
}
