package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryCache is an in-process Cache for single-instance deployments and tests.
type MemoryCache struct {
	now func() time.Time

	mu    sync.Mutex
	items map[string]memoryItem
}

// NewMemoryCache creates an empty cache. now may be nil.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now, items: make(map[string]memoryItem)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.liveLocked(key)
	if !ok {
		return "", nil
	}
	return item.value, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := memoryItem{value: fmt.Sprint(value)}
	if expiration > 0 {
		item.expiresAt = m.now().Add(expiration)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.liveLocked(key)
	var n int64
	if ok {
		if _, err := fmt.Sscan(item.value, &n); err != nil {
			return 0, fmt.Errorf("value at %q is not a counter: %w", key, err)
		}
	} else if window > 0 {
		item.expiresAt = m.now().Add(window)
	}
	n++
	item.value = fmt.Sprint(n)
	m.items[key] = item
	return n, nil
}

func (m *MemoryCache) Close() error { return nil }

func (m *MemoryCache) liveLocked(key string) (memoryItem, bool) {
	item, ok := m.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		return memoryItem{}, false
	}
	return item, true
}
