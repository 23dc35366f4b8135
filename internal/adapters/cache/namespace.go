package cache

import (
	"context"
	"time"

	"github.com/mikey/llm-email-responder/internal/core"
	"go.uber.org/zap"
)

// Namespace prefixes keep stage caches apart inside one backing store.
const (
	NamespaceClassification = "classification"
	NamespaceResponse       = "response"
)

// Namespaced is one stage's view of a shared CacheStore. Backend errors are
// logged and reported as misses; a disabled namespace never hits.
type Namespaced struct {
	store   core.CacheStore
	prefix  string
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

// NewNamespaced scopes store to name with a fixed ttl.
func NewNamespaced(store core.CacheStore, name string, ttl time.Duration, enabled bool, logger *zap.Logger) *Namespaced {
	return &Namespaced{
		store:   store,
		prefix:  name + ":",
		ttl:     ttl,
		enabled: enabled && store != nil,
		logger:  logger.With(zap.String("cache_namespace", name)),
	}
}

// Key returns the backing-store key for fp.
func (n *Namespaced) Key(fp string) string {
	return n.prefix + fp
}

// Lookup returns the cached value for fp, treating any backend failure as a miss.
func (n *Namespaced) Lookup(ctx context.Context, fp string) (string, bool) {
	if !n.enabled {
		return "", false
	}
	value, ok, err := n.store.Get(ctx, n.Key(fp))
	if err != nil {
		n.logger.Warn("Cache lookup failed, treating as miss", zap.Error(err))
		return "", false
	}
	if ok {
		n.logger.Debug("Cache hit", zap.String("fingerprint", fp))
	}
	return value, ok
}

// Store saves value for fp. Failures are logged and otherwise ignored.
func (n *Namespaced) Store(ctx context.Context, fp, value string) {
	if !n.enabled {
		return
	}
	if err := n.store.Put(ctx, n.Key(fp), value, n.ttl); err != nil {
		n.logger.Warn("Failed to update cache", zap.Error(err))
	}
}

// Forget drops fp from the namespace.
func (n *Namespaced) Forget(ctx context.Context, fp string) {
	if !n.enabled {
		return
	}
	if err := n.store.Invalidate(ctx, n.Key(fp)); err != nil {
		n.logger.Warn("Failed to invalidate cache entry", zap.Error(err))
	}
}

// Enabled reports whether lookups can hit.
func (n *Namespaced) Enabled() bool {
	return n.enabled
}
