package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/core"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// exerciseStore runs the shared CacheStore contract against a backend.
func exerciseStore(t *testing.T, store core.CacheStore, advance func(time.Duration)) {
	ctx := context.Background()

	t.Run("miss on unknown key", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k1", "billing", time.Hour))
		v, ok, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "billing", v)
	})

	t.Run("overwrite replaces whole value", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k1", "general", time.Hour))
		v, ok, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "general", v)
	})

	t.Run("invalidate", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k2", "reply", time.Hour))
		require.NoError(t, store.Invalidate(ctx, "k2"))
		_, ok, err := store.Get(ctx, "k2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired entry is absent", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k3", "short lived", time.Minute))
		advance(2 * time.Minute)
		_, ok, err := store.Get(ctx, "k3")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(zap.NewNop(), 16, 0)
	require.NoError(t, err)
	defer c.Stop()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c.now = clock.Now

	exerciseStore(t, c, clock.Advance)

	t.Run("cleanup sweeps expired entries", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Put(ctx, "old", "x", time.Second))
		require.NoError(t, c.Put(ctx, "new", "y", time.Hour))
		clock.Advance(time.Minute)
		require.NoError(t, c.Cleanup(ctx))
		_, ok := c.entries.Peek("old")
		assert.False(t, ok)
		_, ok = c.entries.Peek("new")
		assert.True(t, ok)
	})

	t.Run("expiry keeps a value written during the read", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Put(ctx, "race", "stale", time.Second))
		clock.Advance(time.Minute)

		// The first clock read inside Get stands in for a concurrent Put
		// landing after the expired entry was read.
		armed := true
		c.now = func() time.Time {
			now := clock.Now()
			if armed {
				armed = false
				require.NoError(t, c.Put(ctx, "race", "fresh", time.Hour))
			}
			return now
		}
		defer func() { c.now = clock.Now }()

		_, ok, err := c.Get(ctx, "race")
		require.NoError(t, err)
		assert.False(t, ok)

		got, ok, err := c.Get(ctx, "race")
		require.NoError(t, err)
		require.True(t, ok, "fresh value survives the expiry")
		assert.Equal(t, "fresh", got)
	})

	t.Run("bounded by max entries", func(t *testing.T) {
		small, err := NewMemoryCache(zap.NewNop(), 2, 0)
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, small.Put(ctx, "a", "1", time.Hour))
		require.NoError(t, small.Put(ctx, "b", "2", time.Hour))
		require.NoError(t, small.Put(ctx, "c", "3", time.Hour))
		assert.Equal(t, 2, small.Len())
		_, ok, _ := small.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("rejects non-positive size", func(t *testing.T) {
		_, err := NewMemoryCache(zap.NewNop(), 0, 0)
		assert.Error(t, err)
	})
}

func TestSQLiteCache(t *testing.T) {
	c, err := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"), zap.NewNop(), 0)
	require.NoError(t, err)
	defer c.Stop()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c.now = clock.Now

	exerciseStore(t, c, clock.Advance)

	t.Run("cleanup removes expired rows", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, c.Put(ctx, "stale", "x", time.Second))
		clock.Advance(time.Minute)
		require.NoError(t, c.Cleanup(ctx))
		var n int
		require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM response_cache WHERE cache_key = 'stale'`).Scan(&n))
		assert.Zero(t, n)
	})

	assert.NoError(t, c.Ping(context.Background()))
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, zap.NewNop())
	defer c.Stop()

	exerciseStore(t, c, mr.FastForward)
	assert.NoError(t, c.Ping(context.Background()))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (brokenStore) Put(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenStore) Invalidate(context.Context, string) error {
	return errors.New("connection refused")
}

func TestNamespaced(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryCache(zap.NewNop(), 32, 0)
	require.NoError(t, err)

	t.Run("namespaces are isolated", func(t *testing.T) {
		classification := NewNamespaced(store, NamespaceClassification, time.Hour, true, zap.NewNop())
		response := NewNamespaced(store, NamespaceResponse, time.Hour, true, zap.NewNop())

		classification.Store(ctx, "same-fingerprint", "billing")
		_, ok := response.Lookup(ctx, "same-fingerprint")
		assert.False(t, ok)

		response.Store(ctx, "same-fingerprint", "Dear customer")
		v, ok := classification.Lookup(ctx, "same-fingerprint")
		require.True(t, ok)
		assert.Equal(t, "billing", v)
		v, ok = response.Lookup(ctx, "same-fingerprint")
		require.True(t, ok)
		assert.Equal(t, "Dear customer", v)
	})

	t.Run("backend outage degrades to miss", func(t *testing.T) {
		ns := NewNamespaced(brokenStore{}, NamespaceResponse, time.Hour, true, zap.NewNop())
		ns.Store(ctx, "fp", "value")
		_, ok := ns.Lookup(ctx, "fp")
		assert.False(t, ok)
		ns.Forget(ctx, "fp")
	})

	t.Run("disabled namespace never hits", func(t *testing.T) {
		ns := NewNamespaced(store, NamespaceClassification, time.Hour, false, zap.NewNop())
		ns.Store(ctx, "fp-disabled", "billing")
		_, ok := ns.Lookup(ctx, "fp-disabled")
		assert.False(t, ok)
		assert.False(t, ns.Enabled())
	})

	t.Run("forget removes entry", func(t *testing.T) {
		ns := NewNamespaced(store, NamespaceClassification, time.Hour, true, zap.NewNop())
		ns.Store(ctx, "fp-forget", "billing")
		ns.Forget(ctx, "fp-forget")
		_, ok := ns.Lookup(ctx, "fp-forget")
		assert.False(t, ok)
	})
}
