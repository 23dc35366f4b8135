package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/metrics"
	"github.com/mikey/llm-email-responder/internal/policy"
)

// Component is a named dependency whose readiness is reported by Status.
// Components that do not implement core.Pinger are ready when non-nil.
type Component struct {
	Name  string
	Value any
}

// Service is the entry point used by the CLI, scheduler and HTTP surface.
type Service struct {
	orchestrator *Orchestrator
	index        *policy.Index
	metrics      *metrics.Metrics
	components   []Component
	pingTimeout  time.Duration
	logger       *zap.Logger
}

// NewService creates a Service.
func NewService(o *Orchestrator, index *policy.Index, m *metrics.Metrics, components []Component, pingTimeout time.Duration, logger *zap.Logger) *Service {
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	return &Service{
		orchestrator: o,
		index:        index,
		metrics:      m,
		components:   components,
		pingTimeout:  pingTimeout,
		logger:       logger,
	}
}

// ProcessOnce runs a single batch of at most maxEmails messages. A value of
// zero uses the configured default.
func (s *Service) ProcessOnce(ctx context.Context, maxEmails int) (*core.BatchReport, error) {
	return s.orchestrator.RunOnce(ctx, maxEmails)
}

// RefreshPolicies rebuilds the policy index from disk. The previous
// snapshot keeps serving if the rebuild fails.
func (s *Service) RefreshPolicies(ctx context.Context) error {
	s.logger.Info("Refreshing policy index")
	if err := s.index.Refresh(ctx); err != nil {
		s.logger.Error("Policy index refresh failed", zap.Error(err))
		s.metrics.ObserveIndexBuild(0, 0, err)
		return err
	}
	snap := s.index.Current()
	s.logger.Info("Policy index refreshed",
		zap.Uint64("version", snap.Version),
		zap.Int("documents", len(snap.Documents)),
		zap.Int("chunks", len(snap.Chunks)))
	return nil
}

// Status reports component readiness, index statistics and the last run.
func (s *Service) Status(ctx context.Context) core.Status {
	st := core.Status{Components: make(map[string]bool, len(s.components)+1)}
	for _, c := range s.components {
		st.Components[c.Name] = s.ready(ctx, c)
	}

	snap := s.index.Current()
	st.IndexDocuments = len(snap.Documents)
	st.IndexChunks = len(snap.Chunks)
	st.IndexVersion = snap.Version
	st.IndexBuiltAt = snap.BuiltAt
	st.Components["policy_index"] = len(snap.Chunks) > 0
	st.LastRun = s.orchestrator.LastReport()
	return st
}

func (s *Service) ready(ctx context.Context, c Component) bool {
	if c.Value == nil {
		return false
	}
	p, ok := c.Value.(core.Pinger)
	if !ok {
		return true
	}
	pctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()
	if err := p.Ping(pctx); err != nil {
		s.logger.Warn("Component not ready", zap.String("component", c.Name), zap.Error(err))
		return false
	}
	return true
}
