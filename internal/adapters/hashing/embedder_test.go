package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedder(t *testing.T) {
	e, err := NewEmbedder(1024)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("deterministic and normalised", func(t *testing.T) {
		a, err := e.Embed(ctx, "Refunds for duplicate charges")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "Refunds for duplicate charges")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 1024)
		assert.InDelta(t, 1.0, cosine(a, a), 1e-5)
	})

	t.Run("stopwords only yields zero vector", func(t *testing.T) {
		v, err := e.Embed(ctx, "I was this")
		require.NoError(t, err)
		for _, x := range v {
			require.Zero(t, x)
		}
	})

	t.Run("shared vocabulary scores higher", func(t *testing.T) {
		q, _ := e.Embed(ctx, "I was charged twice this month")
		related, _ := e.Embed(ctx, "If you were charged twice we refund the duplicate")
		unrelated, _ := e.Embed(ctx, "Reset your password from the login page")
		assert.Greater(t, cosine(q, related), cosine(q, unrelated))
		assert.False(t, math.IsNaN(cosine(q, related)))
	})

	t.Run("tokenize drops stopwords", func(t *testing.T) {
		assert.Equal(t, []string{"charged", "twice", "month"}, e.Tokenize("I was charged twice this month"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Embed(cctx, "text")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("rejects bad dimension", func(t *testing.T) {
		_, err := NewEmbedder(0)
		assert.Error(t, err)
	})
}
