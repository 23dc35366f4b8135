package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/bedrock"
	"github.com/mikey/llm-email-responder/internal/adapters/gemini"
	"github.com/mikey/llm-email-responder/internal/adapters/openai"
	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
)

// Provider is a model backend that serves both completions and embeddings.
type Provider interface {
	core.LLMClient
	core.Embedder
}

// LLMFactory creates model provider clients
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLLMClient creates the client named by llm.provider
func (f *LLMFactory) CreateLLMClient(ctx context.Context) (core.LLMClient, error) {
	return f.CreateProvider(ctx, f.cfg.GetLLM().Provider)
}

// CreateProvider creates a client for the named provider
func (f *LLMFactory) CreateProvider(ctx context.Context, name string) (Provider, error) {
	logger := f.logger.With(zap.String("provider", name))
	switch name {
	case "bedrock":
		return bedrock.NewFactory(f.cfg, logger).CreateClient(ctx)
	case "gemini":
		return gemini.NewFactory(f.cfg, logger).CreateClient(ctx)
	case "openai":
		return openai.NewFactory(f.cfg, logger).CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", name)
	}
}
