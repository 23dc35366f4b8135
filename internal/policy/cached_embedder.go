package policy

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/fingerprint"
)

// CachedEmbedder memoises embeddings for repeated texts, which is common for
// queries against an unchanged corpus.
type CachedEmbedder struct {
	next  core.Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with an LRU of the given size.
func NewCachedEmbedder(next core.Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("embedding cache size must be greater than zero")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

// Embed returns a cached vector or delegates to the wrapped embedder.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := fingerprint.Of(text)
	if v, ok := e.cache.Get(key); ok {
		return cloneVector(v), nil
	}
	v, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, cloneVector(v))
	return v, nil
}

// Dimension reports the wrapped embedder's dimension, or 0 when it does not
// declare one.
func (e *CachedEmbedder) Dimension() int {
	if d, ok := e.next.(interface{ Dimension() int }); ok {
		return d.Dimension()
	}
	return 0
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
