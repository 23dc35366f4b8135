// Package responder drafts replies to support emails from retrieved policy
// passages.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/cache"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/fingerprint"
	"github.com/mikey/llm-email-responder/internal/utils"
)

const (
	truncationSuffix = "..."
	noPolicyContext  = "No specific policy information available for this query."
)

const promptFormat = `You are a helpful customer service assistant. Write a professional, %[1]s and helpful email reply to the customer based on their inquiry and the company policies below.

Guidelines:
1. Be %[1]s and professional in tone
2. Address the customer's specific question or concern
3. Use only the provided policy information to give accurate answers
4. Keep the reply concise but complete
5. If the policies do not cover the question, politely direct the customer to human support
6. Do not make up information that is not contained in the policies
7. Open with a general greeting unless the customer signs the email with their name
8. End with a professional closing

Inquiry category: %[2]s

Policy Information:
%[3]s

Customer Email:
%[4]s

Reply with the email body only.`

// Options configures a Generator.
type Options struct {
	Tone        string
	MaxLength   int
	MinLength   int
	MaxTokens   int
	MaxBodySize int
	Timeout     time.Duration
}

// Generator produces reply text. Unlike classification it never invents a
// fallback: a provider failure is returned as generation_failed.
type Generator struct {
	llm           core.LLMClient
	cache         *cache.Namespaced
	textProcessor *utils.TextProcessor
	opts          Options
	logger        *zap.Logger
}

// New creates a Generator.
func New(llm core.LLMClient, c *cache.Namespaced, tp *utils.TextProcessor, opts Options, logger *zap.Logger) *Generator {
	if opts.Tone == "" {
		opts.Tone = "polite"
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 10
	}
	return &Generator{
		llm:           llm,
		cache:         c,
		textProcessor: tp,
		opts:          opts,
		logger:        logger,
	}
}

// CacheKey is the response-cache fingerprint for a request.
func CacheKey(email core.Email, intent core.Intent, chunks []core.PolicyChunk) string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return fingerprint.Combine(email.Body, intent.String(), strings.Join(ids, ","))
}

// Generate returns a reply for email given its intent and policy chunks.
func (g *Generator) Generate(ctx context.Context, email core.Email, intent core.Intent, chunks []core.PolicyChunk) (string, error) {
	key := CacheKey(email, intent, chunks)
	if cached, ok := g.cache.Lookup(ctx, key); ok {
		if g.acceptable(cached) {
			return cached, nil
		}
		g.cache.Forget(ctx, key)
	}

	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := g.llm.Complete(callCtx, g.Prompt(email, intent, chunks), g.opts.MaxTokens)
	if err != nil {
		return "", core.NewStageError(core.StageGenerate, core.KindGenerationFailed, err)
	}

	reply := g.textProcessor.LimitRunes(Clean(raw), g.opts.MaxLength, truncationSuffix)
	if !g.acceptable(reply) {
		return "", core.NewStageError(core.StageGenerate, core.KindGenerationFailed,
			fmt.Errorf("%w: %d usable characters", core.ErrEmptyCompletion, utf8.RuneCountInString(reply)))
	}

	g.cache.Store(ctx, key, reply)
	g.logger.Debug("Generated reply",
		zap.String("message_id", email.ID),
		zap.String("intent", intent.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("length", utf8.RuneCountInString(reply)),
		zap.Duration("duration", time.Since(start)))
	return reply, nil
}

func (g *Generator) acceptable(reply string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(reply))
	if n < g.opts.MinLength {
		return false
	}
	return g.opts.MaxLength <= 0 || n <= g.opts.MaxLength
}

// Prompt renders the generation prompt. Only fields covered by CacheKey
// reach the model, so a cached reply never carries another sender's details.
func (g *Generator) Prompt(email core.Email, intent core.Intent, chunks []core.PolicyChunk) string {
	body := g.textProcessor.ProcessText(email.Body, g.opts.MaxBodySize)
	return fmt.Sprintf(promptFormat, g.opts.Tone, intent, FormatContext(chunks), body)
}

// FormatContext renders chunks as titled sections.
func FormatContext(chunks []core.PolicyChunk) string {
	if len(chunks) == 0 {
		return noPolicyContext
	}
	sections := make([]string, len(chunks))
	for i, c := range chunks {
		title := c.Title
		if title == "" {
			title = fmt.Sprintf("Policy Information %d", i+1)
		}
		sections[i] = "## " + title + "\n" + c.Text
	}
	return strings.Join(sections, "\n\n")
}

// Clean strips bracketed instructions and role-prefixed lines a model
// sometimes echoes back.
func Clean(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "assistant:") || strings.Contains(lower, "system:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
