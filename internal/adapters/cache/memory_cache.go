package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is an in-process CacheStore bounded by an LRU policy.
type MemoryCache struct {
	entries     *lru.Cache[string, memoryEntry]
	logger      *zap.Logger
	cleanupFreq time.Duration
	now         func() time.Time
	stopCh      chan struct{}

	// expiryMu orders expiry removals against writes so a removal never
	// drops a value stored after the expired one was read.
	expiryMu sync.Mutex
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries live
// keys. Expired entries are swept every cleanupFreq.
func NewMemoryCache(logger *zap.Logger, maxEntries int, cleanupFreq time.Duration) (*MemoryCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("memory cache: max entries must be positive, got %d", maxEntries)
	}
	entries, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	c := &MemoryCache{
		entries:     entries,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go c.startCleanupTask()
	}
	return c, nil
}

// Get returns the live value for key.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.removeExpired(key, entry.expiresAt)
		return "", false, nil
	}
	return entry.value, true, nil
}

// removeExpired removes key only if it still holds the entry that expired at
// expiresAt.
func (c *MemoryCache) removeExpired(key string, expiresAt time.Time) bool {
	c.expiryMu.Lock()
	defer c.expiryMu.Unlock()
	current, ok := c.entries.Peek(key)
	if !ok || !current.expiresAt.Equal(expiresAt) {
		return false
	}
	c.entries.Remove(key)
	return true
}

// Put stores value under key for ttl.
func (c *MemoryCache) Put(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	c.expiryMu.Lock()
	c.entries.Add(key, entry)
	c.expiryMu.Unlock()
	return nil
}

// Invalidate removes key.
func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Ping always succeeds for the in-process store.
func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup(context.Context) error {
	now := c.now()
	expired := 0
	for _, key := range c.entries.Keys() {
		entry, ok := c.entries.Peek(key)
		if ok && !now.Before(entry.expiresAt) && c.removeExpired(key, entry.expiresAt) {
			expired++
		}
	}
	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expired))
	return nil
}

func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task.
func (c *MemoryCache) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}
