package store

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	bucket    Bucket
	expiresAt time.Time
}

// MemoryStore is an in-process bucket store with idle expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]memoryBucket
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewMemoryStore creates an in-memory bucket store. A background janitor
// drops idle buckets every cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]memoryBucket),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	if cleanupInterval > 0 {
		go s.janitor(cleanupInterval)
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Bucket, error) {
	s.mu.RLock()
	entry, ok := s.buckets[key]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return Bucket{}, &ErrKeyNotFound{Key: key}
	}
	return entry.bucket, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, b Bucket, ttl time.Duration) error {
	s.mu.Lock()
	s.buckets[key] = memoryBucket{bucket: b, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}

// Len returns the number of live buckets. Intended for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for key, entry := range s.buckets {
				if now.After(entry.expiresAt) {
					delete(s.buckets, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
