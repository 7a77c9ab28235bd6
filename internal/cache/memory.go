package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryCache is a mutex-guarded map with lazy expiry and a background
// janitor. Used when no Redis is configured and in tests.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewMemory creates an in-memory cache.
func NewMemory() Cache {
	c := &memoryCache{
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go c.janitor()
	return c
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.expired(c.now()) {
		c.mu.Lock()
		// Re-check under the write lock: a Set may have replaced the
		// entry since the read.
		if current, ok := c.entries[key]; ok && current.expired(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Get(ctx, key)
	if err != nil {
		if err == ErrCacheMiss {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *memoryCache) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

func (c *memoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := c.now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if entry.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
