package responder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/cache"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/testutil"
	"github.com/mikey/llm-email-responder/internal/utils"
)

var refundChunks = []core.PolicyChunk{
	{ID: "billing.md#0-aaaa", Title: "Billing", Text: "Duplicate charges are refunded within five business days."},
	{ID: "billing.md#1-bbbb", Title: "Billing", Text: "Refunds go back to the original payment method."},
}

func newGenerator(t *testing.T, llm core.LLMClient, maxLength int) *Generator {
	t.Helper()
	store, err := cache.NewMemoryCache(zap.NewNop(), 64, 0)
	require.NoError(t, err)
	ns := cache.NewNamespaced(store, cache.NamespaceResponse, time.Hour, true, zap.NewNop())
	return New(llm, ns, utils.NewTextProcessor(zap.NewNop()), Options{
		Tone:        "friendly",
		MaxLength:   maxLength,
		MaxTokens:   256,
		MaxBodySize: 4096,
		Timeout:     time.Second,
	}, zap.NewNop())
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	email := core.Email{ID: "m1", From: "ann@example.com", FromName: "Ann", Subject: "Double charge", Body: "I was charged twice this month"}
	const reply = "Hi Ann,\n\nWe are sorry about the duplicate charge. A refund will reach your card within five business days.\n\nBest regards,\nSupport"

	t.Run("prompt carries email intent and policy", func(t *testing.T) {
		llm := testutil.NewScriptedLLM(reply)
		g := newGenerator(t, llm, 500)

		got, err := g.Generate(ctx, email, core.IntentBilling, refundChunks)
		require.NoError(t, err)
		assert.Equal(t, reply, got)

		prompt := llm.Prompts()[0]
		assert.Contains(t, prompt, "friendly")
		assert.Contains(t, prompt, "Inquiry category: billing")
		assert.Contains(t, prompt, "## Billing\nDuplicate charges are refunded")
		assert.Contains(t, prompt, email.Body)
		assert.NotContains(t, prompt, "Ann")
		assert.NotContains(t, prompt, email.Subject)
	})

	t.Run("cached by body intent and chunk ids", func(t *testing.T) {
		llm := testutil.NewScriptedLLM(reply)
		g := newGenerator(t, llm, 500)

		_, err := g.Generate(ctx, email, core.IntentBilling, refundChunks)
		require.NoError(t, err)
		_, err = g.Generate(ctx, email, core.IntentBilling, refundChunks)
		require.NoError(t, err)
		assert.Equal(t, 1, llm.Calls())

		_, err = g.Generate(ctx, email, core.IntentGeneral, refundChunks)
		require.NoError(t, err)
		_, err = g.Generate(ctx, email, core.IntentBilling, refundChunks[:1])
		require.NoError(t, err)
		assert.Equal(t, 3, llm.Calls())
	})

	t.Run("other senders share the cached reply", func(t *testing.T) {
		llm := &testutil.ScriptedLLM{Respond: func(_ context.Context, prompt string) (string, error) {
			if strings.Contains(prompt, "Ann") || strings.Contains(prompt, "Bob") {
				return "Hi there, personal details leaked into the prompt.", nil
			}
			return "Hello,\n\nA refund for the duplicate charge will reach your card within five business days.", nil
		}}
		g := newGenerator(t, llm, 500)

		first, err := g.Generate(ctx, email, core.IntentBilling, refundChunks)
		require.NoError(t, err)
		other := core.Email{ID: "m2", From: "bob@example.com", FromName: "Bob", Subject: "Refund please", Body: email.Body}
		second, err := g.Generate(ctx, other, core.IntentBilling, refundChunks)
		require.NoError(t, err)

		assert.Equal(t, 1, llm.Calls())
		assert.Equal(t, first, second)
		assert.NotContains(t, second, "Ann")
	})

	t.Run("long replies are truncated to the limit", func(t *testing.T) {
		llm := testutil.NewScriptedLLM(strings.Repeat("We will look into this for you. ", 40))
		g := newGenerator(t, llm, 120)

		got, err := g.Generate(ctx, email, core.IntentBilling, refundChunks)
		require.NoError(t, err)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), 120)
		assert.True(t, strings.HasSuffix(got, "..."))
	})

	t.Run("provider failure is generation_failed", func(t *testing.T) {
		llm := &testutil.ScriptedLLM{Respond: func(context.Context, string) (string, error) {
			return "", errors.New("503 backend unavailable")
		}}
		g := newGenerator(t, llm, 500)

		_, err := g.Generate(ctx, email, core.IntentBilling, refundChunks)
		require.Error(t, err)
		kind, ok := core.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, core.KindGenerationFailed, kind)
	})

	t.Run("timeout is generation_failed", func(t *testing.T) {
		llm := &testutil.ScriptedLLM{Respond: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
		g := newGenerator(t, llm, 500)
		g.opts.Timeout = 10 * time.Millisecond

		_, err := g.Generate(ctx, email, core.IntentBilling, refundChunks)
		kind, _ := core.KindOf(err)
		assert.Equal(t, core.KindGenerationFailed, kind)
		assert.True(t, core.IsTimeout(err))
	})

	t.Run("empty output is generation_failed and not cached", func(t *testing.T) {
		llm := testutil.NewScriptedLLM("[thinking]\nassistant: ok\n")
		g := newGenerator(t, llm, 500)

		_, err := g.Generate(ctx, email, core.IntentBilling, refundChunks)
		assert.ErrorIs(t, err, core.ErrEmptyCompletion)
		_, err = g.Generate(ctx, email, core.IntentBilling, refundChunks)
		assert.Error(t, err)
		assert.Equal(t, 2, llm.Calls())
	})
}

func TestClean(t *testing.T) {
	in := "[Draft reply]\nSystem: follow the rules\nDear Ann,\n  [signature] \nThanks for writing.\nAssistant: done"
	assert.Equal(t, "Dear Ann,\nThanks for writing.", Clean(in))
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, noPolicyContext, FormatContext(nil))
	got := FormatContext([]core.PolicyChunk{{Text: "one"}, {Title: "Refunds", Text: "two"}})
	assert.Equal(t, "## Policy Information 1\none\n\n## Refunds\ntwo", got)
}
