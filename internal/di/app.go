package di

import (
	"context"
	"errors"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/classifier"
	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/policy"
	"github.com/mikey/llm-email-responder/internal/responder"
	"github.com/mikey/llm-email-responder/internal/server"
	"github.com/mikey/llm-email-responder/internal/suppress"
	"github.com/mikey/llm-email-responder/internal/workflow"
)

// App is the set of components the responder commands operate on.
type App struct {
	dig.In

	Config   *config.Config
	Logger   *zap.Logger
	Index    *policy.Index
	Gateway  core.MailGateway
	Service  *workflow.Service
	Server   *server.Server
	LLM      core.LLMClient
	Store    core.CacheStore
	Ledger   core.ProcessedLedger
	Embedder core.Embedder
}

// Start warms the policy index and starts the gateway's listener, if it has
// one.
func (a App) Start(ctx context.Context) error {
	if err := a.Index.Warm(ctx); err != nil {
		return err
	}
	if s, ok := a.Gateway.(interface{ Start() error }); ok {
		if err := s.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every component that holds a connection or goroutine.
func (a App) Close() error {
	return release(a.Logger, a.Gateway, a.Ledger, a.Store, a.LLM, a.Embedder)
}

// Drafter is the set of components used to draft a single reply offline.
type Drafter struct {
	dig.In

	Config     *config.Config
	Logger     *zap.Logger
	Index      *policy.Index
	Classifier *classifier.Classifier
	Retriever  *policy.Retriever
	Generator  *responder.Generator
	Suppressor *suppress.Checker
	LLM        core.LLMClient
	Store      core.CacheStore
}

// Close releases the drafter's clients and stores.
func (d Drafter) Close() error {
	return release(d.Logger, d.Store, d.LLM)
}

func release(logger *zap.Logger, components ...any) error {
	var errs []error
	for _, c := range components {
		switch v := c.(type) {
		case interface{ Stop() error }:
			errs = append(errs, v.Stop())
		case interface{ Stop() }:
			v.Stop()
		case interface{ Close() error }:
			errs = append(errs, v.Close())
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Warn("Failed to release resources cleanly", zap.Error(err))
	}
	return err
}
