package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/hashing"
	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/policy"
)

// EmbedderFactory creates the embedder used by the policy index
type EmbedderFactory struct {
	cfg    *config.Config
	llm    *LLMFactory
	logger *zap.Logger
}

// NewEmbedderFactory creates a new embedder factory
func NewEmbedderFactory(cfg *config.Config, llm *LLMFactory, logger *zap.Logger) *EmbedderFactory {
	return &EmbedderFactory{
		cfg:    cfg,
		llm:    llm,
		logger: logger,
	}
}

// EmbedderID identifies the configured embedding provider and model.
func (f *EmbedderFactory) EmbedderID() string {
	embCfg := f.cfg.GetEmbedding()
	switch embCfg.Provider {
	case "hashing":
		return fmt.Sprintf("hashing/%d", embCfg.Dimension)
	case "openai":
		return "openai/" + f.cfg.GetOpenAI().EmbeddingModel
	case "gemini":
		return "gemini/" + f.cfg.GetGemini().EmbeddingModel
	case "bedrock":
		return "bedrock/" + f.cfg.GetBedrock().EmbeddingModelID
	default:
		return embCfg.Provider
	}
}

// CreateEmbedder returns the configured embedder, fronted by an in-process
// vector cache when embedding.cache_size is positive.
func (f *EmbedderFactory) CreateEmbedder(ctx context.Context) (core.Embedder, error) {
	embCfg := f.cfg.GetEmbedding()

	var embedder core.Embedder
	switch embCfg.Provider {
	case "hashing":
		h, err := hashing.NewEmbedder(embCfg.Dimension)
		if err != nil {
			return nil, err
		}
		embedder = h
	case "openai", "gemini", "bedrock":
		p, err := f.llm.CreateProvider(ctx, embCfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s embedder: %w", embCfg.Provider, err)
		}
		embedder = p
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", embCfg.Provider)
	}

	if embCfg.CacheSize <= 0 {
		return embedder, nil
	}
	f.logger.Debug("Caching embeddings", zap.String("provider", embCfg.Provider), zap.Int("size", embCfg.CacheSize))
	return policy.NewCachedEmbedder(embedder, embCfg.CacheSize)
}
