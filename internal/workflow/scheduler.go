package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers batch runs and policy refreshes on fixed intervals.
// Overlapping ticks are skipped while a previous job is still running.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *zap.Logger

	// ctx is the parent of every job; Stop cancels it so a running batch
	// starts no further emails.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers the processing job and, when refreshEvery is
// positive, the policy refresh job.
func NewScheduler(service *Service, processEvery, refreshEvery time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if processEvery <= 0 {
		return nil, fmt.Errorf("process interval must be positive, got %s", processEvery)
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, service: service, logger: logger, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc("@every "+processEvery.String(), s.process); err != nil {
		return nil, fmt.Errorf("failed to schedule processing: %w", err)
	}
	if refreshEvery > 0 {
		if _, err := c.AddFunc("@every "+refreshEvery.String(), s.refresh); err != nil {
			return nil, fmt.Errorf("failed to schedule policy refresh: %w", err)
		}
	}
	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop prevents new jobs from starting, cancels running ones and waits for
// their in-flight emails, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) process() {
	if _, err := s.service.ProcessOnce(s.ctx, 0); err != nil {
		s.logger.Error("Scheduled batch failed", zap.Error(err))
	}
}

func (s *Scheduler) refresh() {
	if err := s.service.RefreshPolicies(s.ctx); err != nil {
		s.logger.Error("Scheduled policy refresh failed", zap.Error(err))
	}
}
