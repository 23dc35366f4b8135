// Package workflow drives fetched emails through classification, retrieval,
// generation and sending, and reports per-batch outcomes.
package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/llm-email-responder/internal/classifier"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/metrics"
	"github.com/mikey/llm-email-responder/internal/suppress"
)

// Classifier assigns an intent; it never fails.
type Classifier interface {
	Classify(ctx context.Context, email core.Email) classifier.Result
}

// Retriever finds the policy chunks for an email.
type Retriever interface {
	Retrieve(ctx context.Context, intent core.Intent, email core.Email) ([]core.PolicyChunk, error)
}

// Generator drafts the reply text.
type Generator interface {
	Generate(ctx context.Context, email core.Email, intent core.Intent, chunks []core.PolicyChunk) (string, error)
}

// Options tunes batch execution.
type Options struct {
	MaxEmails      int
	Concurrency    int
	SendRetryDelay time.Duration
	MailTimeout    time.Duration
}

// Orchestrator runs batches. Runs are serialised; emails inside a run are
// independent and may be processed concurrently.
type Orchestrator struct {
	gateway    core.MailGateway
	classifier Classifier
	retriever  Retriever
	generator  Generator
	ledger     core.ProcessedLedger
	suppressor *suppress.Checker
	metrics    *metrics.Metrics
	opts       Options
	logger     *zap.Logger

	runMu      sync.Mutex
	lastReport atomic.Pointer[core.BatchReport]
}

// NewOrchestrator wires the pipeline. suppressor and m may be nil.
func NewOrchestrator(
	gateway core.MailGateway,
	cls Classifier,
	retriever Retriever,
	generator Generator,
	ledger core.ProcessedLedger,
	suppressor *suppress.Checker,
	m *metrics.Metrics,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxEmails <= 0 {
		opts.MaxEmails = 50
	}
	return &Orchestrator{
		gateway:    gateway,
		classifier: cls,
		retriever:  retriever,
		generator:  generator,
		ledger:     ledger,
		suppressor: suppressor,
		metrics:    m,
		opts:       opts,
		logger:     logger,
	}
}

// LastReport returns the report of the most recent completed run, if any.
func (o *Orchestrator) LastReport() *core.BatchReport {
	return o.lastReport.Load()
}

// RunOnce fetches up to maxEmails unread messages and drives each to a
// terminal state. Only a fetch failure fails the run as a whole. Cancelling
// ctx stops new emails from starting; emails already in flight finish,
// including any pending send retry.
func (o *Orchestrator) RunOnce(ctx context.Context, maxEmails int) (*core.BatchReport, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if maxEmails <= 0 {
		maxEmails = o.opts.MaxEmails
	}
	report := core.NewBatchReport(uuid.NewString(), time.Now())
	logger := o.logger.With(zap.String("run_id", report.RunID))

	fetchStart := time.Now()
	emails, err := o.fetch(ctx, maxEmails)
	o.metrics.ObserveStage(core.StageFetch, time.Since(fetchStart))
	if err != nil {
		report.FinishedAt = time.Now()
		o.metrics.ObserveBatch(err)
		logger.Error("Failed to fetch unread emails", zap.Error(err))
		return report, core.NewStageError(core.StageFetch, core.KindFetchFailed, err)
	}
	if len(emails) > maxEmails {
		emails = emails[:maxEmails]
	}
	report.Fetched = len(emails)
	logger.Info("Fetched unread emails", zap.Int("count", len(emails)))

	results := make([]core.WorkflowResult, len(emails))
	seen := make(map[string]bool, len(emails))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, email := range emails {
		if seen[email.ID] {
			results[i] = skipped(email.ID, core.SkipDuplicate, "message id repeated in batch")
			continue
		}
		seen[email.ID] = true

		if ctx.Err() != nil {
			results[i] = skipped(email.ID, core.SkipCancelled, "run cancelled before start")
			continue
		}
		i, email := i, email
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = skipped(email.ID, core.SkipCancelled, "run cancelled before start")
				return nil
			}
			results[i] = o.process(context.WithoutCancel(ctx), email, logger)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		report.Add(res)
		o.metrics.ObserveResult(res)
	}
	report.FinishedAt = time.Now()
	o.metrics.ObserveBatch(nil)
	o.lastReport.Store(report)

	logger.Info("Batch complete",
		zap.Int("fetched", report.Fetched),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Any("failed_by_kind", report.FailedByKind),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (o *Orchestrator) fetch(ctx context.Context, maxEmails int) ([]core.Email, error) {
	fctx, cancel := o.mailContext(ctx)
	defer cancel()
	return o.gateway.FetchUnread(fctx, maxEmails)
}

func (o *Orchestrator) mailContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.MailTimeout > 0 {
		return context.WithTimeout(ctx, o.opts.MailTimeout)
	}
	return context.WithCancel(ctx)
}

// process runs the per-email state machine. ctx is detached from batch
// cancellation; every external call inside carries its own timeout.
func (o *Orchestrator) process(ctx context.Context, email core.Email, logger *zap.Logger) core.WorkflowResult {
	run := &emailRun{
		result: core.WorkflowResult{
			MessageID:  email.ID,
			FinalState: core.StateFetched,
			StartedAt:  time.Now(),
		},
		metrics: o.metrics,
	}
	logger = logger.With(zap.String("message_id", email.ID))

	if done, err := o.ledger.Contains(ctx, email.ID); err != nil {
		logger.Warn("Processed-id lookup failed, continuing", zap.Error(err))
	} else if done {
		logger.Info("Skipping email that was already answered")
		return run.skip(core.SkipAlreadyProcessed, "reply already sent")
	}

	if o.suppressor != nil {
		if suppressed, why := o.suppressor.IsSuppressed(email.From); suppressed {
			logger.Info("Skipping suppressed sender", zap.String("sender", email.From), zap.String("reason", why))
			o.markProcessed(ctx, email.ID, logger)
			return run.skip(core.SkipSuppressed, why)
		}
	}

	// Classify
	stageStart := time.Now()
	cls := o.classifier.Classify(ctx, email)
	run.observe(core.StageClassify, stageStart)
	run.result.Intent = cls.Intent
	if cls.Degraded {
		run.degrade(core.KindClassificationDegraded)
	}
	run.advance(core.StateClassified)

	// Retrieve
	stageStart = time.Now()
	chunks, err := o.retriever.Retrieve(ctx, cls.Intent, email)
	run.observe(core.StageRetrieve, stageStart)
	if err != nil {
		logger.Warn("Policy retrieval failed, continuing without policy context", zap.Error(err))
		chunks = nil
	}
	if len(chunks) == 0 {
		run.degrade(core.KindRetrievalEmpty)
	}
	for _, c := range chunks {
		run.result.ChunkIDs = append(run.result.ChunkIDs, c.ID)
	}
	run.advance(core.StateRetrieved)

	// Generate
	stageStart = time.Now()
	reply, err := o.generator.Generate(ctx, email, cls.Intent, chunks)
	run.observe(core.StageGenerate, stageStart)
	if err != nil {
		logger.Error("Reply generation failed", zap.Error(err))
		return run.fail(core.StageGenerate, core.KindGenerationFailed, err)
	}
	run.advance(core.StateGenerated)

	// Send
	stageStart = time.Now()
	err = o.send(ctx, email, reply, &run.result.SendAttempts, logger)
	run.observe(core.StageSend, stageStart)
	if err != nil {
		logger.Error("Failed to send reply", zap.Int("attempts", run.result.SendAttempts), zap.Error(err))
		return run.fail(core.StageSend, core.KindSendFailed, err)
	}
	run.advance(core.StateSent)

	if err := o.ledger.Add(ctx, email.ID); err != nil {
		logger.Warn("Failed to record processed id", zap.Error(err))
	}
	o.markProcessed(ctx, email.ID, logger)

	logger.Info("Reply sent",
		zap.String("intent", cls.Intent.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("attempts", run.result.SendAttempts))
	return run.done()
}

// send delivers reply, retrying once on failure.
func (o *Orchestrator) send(ctx context.Context, email core.Email, reply string, attempts *int, logger *zap.Logger) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(o.retryDelay()))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		*attempts++
		sctx, cancel := o.mailContext(ctx)
		defer cancel()
		if err := o.gateway.SendReply(sctx, email, reply); err != nil {
			if *attempts == 1 {
				logger.Warn("Send failed, retrying once", zap.Error(err))
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (o *Orchestrator) retryDelay() time.Duration {
	if o.opts.SendRetryDelay > 0 {
		return o.opts.SendRetryDelay
	}
	return time.Millisecond
}

func (o *Orchestrator) markProcessed(ctx context.Context, id string, logger *zap.Logger) {
	mctx, cancel := o.mailContext(ctx)
	defer cancel()
	if err := o.gateway.MarkProcessed(mctx, id); err != nil {
		logger.Warn("Failed to mark email processed", zap.Error(err))
	}
}

// emailRun tracks one email's progress through the states.
type emailRun struct {
	result  core.WorkflowResult
	metrics *metrics.Metrics
}

func (r *emailRun) advance(s core.State) {
	r.result.FinalState = s
}

func (r *emailRun) degrade(kind core.ErrorKind) {
	r.result.Degraded = append(r.result.Degraded, kind)
}

func (r *emailRun) observe(stage core.Stage, start time.Time) {
	r.metrics.ObserveStage(stage, time.Since(start))
}

func (r *emailRun) finish() core.WorkflowResult {
	r.result.FinishedAt = time.Now()
	r.result.Duration = r.result.FinishedAt.Sub(r.result.StartedAt)
	return r.result
}

func (r *emailRun) done() core.WorkflowResult {
	r.result.Outcome = core.OutcomeSent
	r.result.FinalState = core.StateDone
	return r.finish()
}

func (r *emailRun) fail(stage core.Stage, kind core.ErrorKind, err error) core.WorkflowResult {
	var se *core.StageError
	if errors.As(err, &se) {
		err = se.Err
	}
	r.result.Outcome = core.OutcomeFailed
	r.result.FinalState = core.StateFailed
	r.result.FailedStage = stage
	r.result.Kind = kind
	r.result.Reason = err.Error()
	return r.finish()
}

func (r *emailRun) skip(reason core.SkipReason, detail string) core.WorkflowResult {
	r.result.Outcome = core.OutcomeSkipped
	r.result.FinalState = core.StateSkipped
	r.result.SkipReason = reason
	r.result.Reason = detail
	return r.finish()
}

func skipped(id string, reason core.SkipReason, detail string) core.WorkflowResult {
	now := time.Now()
	return core.WorkflowResult{
		MessageID:  id,
		Outcome:    core.OutcomeSkipped,
		FinalState: core.StateSkipped,
		SkipReason: reason,
		Reason:     detail,
		StartedAt:  now,
		FinishedAt: now,
	}
}
