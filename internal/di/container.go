// Package di wires the responder's components with dig.
package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/cache"
	"github.com/mikey/llm-email-responder/internal/classifier"
	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/factory"
	"github.com/mikey/llm-email-responder/internal/metrics"
	"github.com/mikey/llm-email-responder/internal/policy"
	"github.com/mikey/llm-email-responder/internal/responder"
	"github.com/mikey/llm-email-responder/internal/server"
	"github.com/mikey/llm-email-responder/internal/suppress"
	"github.com/mikey/llm-email-responder/internal/utils"
	"github.com/mikey/llm-email-responder/internal/workflow"
)

// BuildContainer creates the container for the long-running responder:
// the full pipeline plus the mail gateway, ledger, scheduler and HTTP server.
func BuildContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dig.Container, error) {
	container := dig.New()
	if err := providePipeline(ctx, container, cfg, logger); err != nil {
		return nil, err
	}

	providers := []any{
		factory.NewLedgerFactory,
		factory.NewGatewayFactory,

		func(f *factory.LedgerFactory) (core.ProcessedLedger, error) {
			return f.CreateLedger()
		},
		func(f *factory.GatewayFactory) (core.MailGateway, error) {
			return f.CreateGateway(ctx)
		},
		newOrchestrator,
		newService,
		func(cfg *config.Config, service *workflow.Service, logger *zap.Logger) (*workflow.Scheduler, error) {
			return workflow.NewScheduler(service, cfg.GetWorkflow().Interval, cfg.GetPolicy().RefreshInterval, logger.Named("scheduler"))
		},
		func(cfg *config.Config, service *workflow.Service, m *metrics.Metrics, logger *zap.Logger) *server.Server {
			return server.New(service, m.Handler(), cfg.GetServer(), logger.Named("http"))
		},
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}
	return container, nil
}

// BuildDrafterContainer creates a container with only what is needed to
// draft a reply to a single message: no gateway, ledger or scheduler.
func BuildDrafterContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dig.Container, error) {
	container := dig.New()
	if err := providePipeline(ctx, container, cfg, logger); err != nil {
		return nil, err
	}
	return container, nil
}

func providePipeline(ctx context.Context, container *dig.Container, cfg *config.Config, logger *zap.Logger) error {
	providers := []any{
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger },
		metrics.New,

		// Factories
		factory.NewLLMFactory,
		factory.NewEmbedderFactory,
		factory.NewCacheFactory,

		func(logger *zap.Logger) *utils.TextProcessor {
			return utils.NewTextProcessor(logger.Named("text"))
		},
		func(f *factory.LLMFactory) (core.LLMClient, error) {
			return f.CreateLLMClient(ctx)
		},
		func(f *factory.EmbedderFactory) (core.Embedder, error) {
			return f.CreateEmbedder(ctx)
		},
		func(f *factory.CacheFactory) (core.CacheStore, error) {
			return f.CreateCacheStore()
		},

		newIndex,
		func(cfg *config.Config, index *policy.Index, tp *utils.TextProcessor, logger *zap.Logger) *policy.Retriever {
			return policy.NewRetriever(index, cfg.GetPolicy().TopK, cfg.GetLLM().MaxBodySize, tp, logger.Named("retriever"))
		},
		newClassifier,
		newGenerator,
		newSuppressor,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func newIndex(cfg *config.Config, embedder core.Embedder, ef *factory.EmbedderFactory, m *metrics.Metrics, logger *zap.Logger) (*policy.Index, error) {
	policyCfg := cfg.GetPolicy()
	index, err := policy.NewIndex(embedder, policy.Options{
		Dir:              policyCfg.Dir,
		ChunkSize:        policyCfg.ChunkSize,
		ChunkOverlap:     policyCfg.ChunkOverlap,
		BuildConcurrency: policyCfg.BuildConcurrency,
		EmbedTimeout:     cfg.GetTimeouts().Embedding,
		SnapshotPath:     policyCfg.SnapshotPath,
		EmbedderID:       ef.EmbedderID(),
	}, logger.Named("policy"))
	if err != nil {
		return nil, err
	}
	index.OnBuild(func(snap *policy.Snapshot) {
		m.ObserveIndexBuild(snap.Version, len(snap.Chunks), nil)
	})
	return index, nil
}

func newClassifier(
	cfg *config.Config,
	llm core.LLMClient,
	store core.CacheStore,
	f *factory.CacheFactory,
	tp *utils.TextProcessor,
	logger *zap.Logger,
) *classifier.Classifier {
	llmCfg := cfg.GetLLM()
	return classifier.New(llm, f.CreateNamespace(store, cache.NamespaceClassification), tp, classifier.Options{
		MaxBodySize: llmCfg.MaxBodySize,
		MaxTokens:   llmCfg.ClassifyMaxTokens,
		Timeout:     cfg.GetTimeouts().LLM,
	}, logger.Named("classifier"))
}

func newGenerator(
	cfg *config.Config,
	llm core.LLMClient,
	store core.CacheStore,
	f *factory.CacheFactory,
	tp *utils.TextProcessor,
	logger *zap.Logger,
) *responder.Generator {
	llmCfg := cfg.GetLLM()
	respCfg := cfg.GetResponse()
	return responder.New(llm, f.CreateNamespace(store, cache.NamespaceResponse), tp, responder.Options{
		Tone:        respCfg.Tone,
		MaxLength:   respCfg.MaxLength,
		MinLength:   respCfg.MinLength,
		MaxTokens:   llmCfg.GenerateMaxTokens,
		MaxBodySize: llmCfg.MaxBodySize,
		Timeout:     cfg.GetTimeouts().LLM,
	}, logger.Named("responder"))
}

// newSuppressor adds the responder's own address so it never answers itself.
func newSuppressor(cfg *config.Config, logger *zap.Logger) *suppress.Checker {
	entries := cfg.GetWorkflow().Suppress
	if len(entries) > 0 {
		logger.Info("Loaded suppressed senders", zap.Strings("entries", entries))
	}
	checker := suppress.NewChecker(entries, logger.Named("suppress"))
	if addr := cfg.GetMail().Address; addr != "" {
		checker.AddAddress(addr)
	}
	return checker
}

func newOrchestrator(
	cfg *config.Config,
	gateway core.MailGateway,
	cls *classifier.Classifier,
	retriever *policy.Retriever,
	generator *responder.Generator,
	ledger core.ProcessedLedger,
	suppressor *suppress.Checker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *workflow.Orchestrator {
	wfCfg := cfg.GetWorkflow()
	return workflow.NewOrchestrator(gateway, cls, retriever, generator, ledger, suppressor, m, workflow.Options{
		MaxEmails:      wfCfg.MaxEmails,
		Concurrency:    wfCfg.Concurrency,
		SendRetryDelay: wfCfg.SendRetryDelay,
		MailTimeout:    cfg.GetTimeouts().Mail,
	}, logger.Named("workflow"))
}

func newService(
	cfg *config.Config,
	o *workflow.Orchestrator,
	index *policy.Index,
	m *metrics.Metrics,
	gateway core.MailGateway,
	llm core.LLMClient,
	embedder core.Embedder,
	store core.CacheStore,
	ledger core.ProcessedLedger,
	logger *zap.Logger,
) *workflow.Service {
	components := []workflow.Component{
		{Name: "mail_gateway", Value: gateway},
		{Name: "llm", Value: llm},
		{Name: "embedder", Value: embedder},
		{Name: "cache", Value: store},
		{Name: "processed_ledger", Value: ledger},
	}
	return workflow.NewService(o, index, m, components, cfg.GetTimeouts().Mail, logger)
}
