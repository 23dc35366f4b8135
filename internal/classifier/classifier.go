// Package classifier assigns each inbound email to one intent category.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/cache"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/fingerprint"
	"github.com/mikey/llm-email-responder/internal/utils"
)

const promptFormat = `You are an email triage system for a customer support team.
Classify the email below into exactly one of these categories:
%s
Email:
Subject: %s
Body:
%s

Respond with only the category name and nothing else.`

// Result is the outcome of classifying one email.
type Result struct {
	Intent core.Intent
	// Cached is set when the intent came from the classification cache.
	Cached bool
	// Degraded is set when the intent is the fallback rather than a model
	// answer; Reason says why.
	Degraded bool
	Reason   string
}

// Options configures a Classifier.
type Options struct {
	MaxBodySize int
	MaxTokens   int
	Timeout     time.Duration
}

// Classifier maps emails onto the closed intent set. It never fails: any
// provider error or unusable answer yields IntentGeneral.
type Classifier struct {
	llm           core.LLMClient
	cache         *cache.Namespaced
	textProcessor *utils.TextProcessor
	opts          Options
	logger        *zap.Logger
}

// New creates a Classifier.
func New(llm core.LLMClient, c *cache.Namespaced, tp *utils.TextProcessor, opts Options, logger *zap.Logger) *Classifier {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 10
	}
	return &Classifier{
		llm:           llm,
		cache:         c,
		textProcessor: tp,
		opts:          opts,
		logger:        logger,
	}
}

// Classify returns the intent for email, consulting the cache first.
func (c *Classifier) Classify(ctx context.Context, email core.Email) Result {
	fp := fingerprint.Of(email.Body)
	if cached, ok := c.cache.Lookup(ctx, fp); ok {
		if intent, valid := core.ParseIntent(cached); valid {
			return Result{Intent: intent, Cached: true}
		}
		c.logger.Warn("Discarding invalid cached intent", zap.String("value", cached))
		c.cache.Forget(ctx, fp)
	}

	callCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	answer, err := c.llm.Complete(callCtx, c.prompt(email), c.opts.MaxTokens)
	if err != nil {
		// Provider failures are never cached.
		c.logger.Warn("Intent classification degraded to general",
			zap.String("message_id", email.ID),
			zap.String("kind", string(core.KindClassificationDegraded)),
			zap.Bool("timeout", core.IsTimeout(err)),
			zap.Error(err))
		return Result{Intent: core.IntentGeneral, Degraded: true, Reason: err.Error()}
	}

	res := Result{Intent: core.IntentGeneral}
	if intent, ok := ParseLabel(answer); ok {
		res.Intent = intent
	} else {
		res.Degraded = true
		res.Reason = fmt.Sprintf("unrecognised label %q", truncateForLog(answer))
		c.logger.Warn("Intent classification degraded to general",
			zap.String("message_id", email.ID),
			zap.String("kind", string(core.KindClassificationDegraded)),
			zap.String("answer", truncateForLog(answer)))
	}

	c.cache.Store(ctx, fp, res.Intent.String())
	c.logger.Debug("Classified email",
		zap.String("message_id", email.ID),
		zap.String("intent", res.Intent.String()))
	return res
}

func (c *Classifier) prompt(email core.Email) string {
	var categories strings.Builder
	for _, in := range core.AllIntents() {
		fmt.Fprintf(&categories, "- %s: %s\n", in, in.Description())
	}
	body := c.textProcessor.ProcessText(email.Body, c.opts.MaxBodySize)
	return fmt.Sprintf(promptFormat, categories.String(), email.Subject, body)
}

// ParseLabel extracts an intent from a model answer. The whole answer is
// tried first, then each word and each adjacent word pair, so answers like
// "Category: billing." or "Technical support" are accepted. Negated labels
// are ignored, and an answer naming more than one other label is rejected.
func ParseLabel(answer string) (core.Intent, bool) {
	cleaned := strings.Trim(strings.TrimSpace(answer), "\"'`.*:; \n")
	if intent, ok := core.ParseIntent(cleaned); ok {
		return intent, true
	}

	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	found := make(map[core.Intent]bool)
	for i, w := range words {
		if i > 0 && negations[words[i-1]] {
			continue
		}
		if intent, ok := core.ParseIntent(w); ok {
			found[intent] = true
		}
		if i+1 < len(words) {
			if intent, ok := core.ParseIntent(w + "_" + words[i+1]); ok {
				found[intent] = true
			}
		}
	}
	if len(found) > 1 {
		delete(found, core.IntentGeneral)
	}
	if len(found) != 1 {
		return "", false
	}
	for intent := range found {
		return intent, true
	}
	return "", false
}

var negations = map[string]bool{"not": true, "no": true, "never": true, "isn": true, "t": true, "nor": true, "neither": true}

func truncateForLog(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
