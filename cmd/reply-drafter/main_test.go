package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/config"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/di"
	"github.com/mikey/llm-email-responder/internal/testutil"
)

const reply = "Thanks for getting in touch. Password resets are available from the sign-in page."

func withDrafter(t *testing.T, fn func(di.Drafter)) {
	t.Helper()
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("openai.api_key", "sk-test")
	cfg.Set("policy.dir", testutil.WritePolicies(t, map[string]string{
		"account.md": "# Passwords\n\nReset your password from the sign-in page using the forgot password link.",
	}))
	cfg.Set("mail.address", "support@example.com")

	container, err := di.BuildDrafterContainer(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, container.Decorate(func(core.LLMClient) core.LLMClient {
		return &testutil.ScriptedLLM{Respond: func(_ context.Context, prompt string) (string, error) {
			if testutil.IsClassifyPrompt(prompt) {
				return "technical_support", nil
			}
			return reply, nil
		}}
	}))
	require.NoError(t, container.Invoke(fn))
}

func TestDraftReply(t *testing.T) {
	withDrafter(t, func(d di.Drafter) {
		email := core.Email{From: "bob@example.com", Subject: "Locked out", Body: "I forgot my password and cannot sign in"}
		draft, err := draftReply(context.Background(), d, email)
		require.NoError(t, err)

		assert.False(t, draft.Suppressed)
		assert.Equal(t, core.IntentTechnicalSupport, draft.Intent)
		assert.NotEmpty(t, draft.ChunkIDs)
		assert.Equal(t, reply, draft.Reply)

		var buf bytes.Buffer
		printDraft(&buf, email, draft)
		assert.Contains(t, buf.String(), "Subject: Re: Locked out")
	})
}

func TestDraftReplySuppressed(t *testing.T) {
	withDrafter(t, func(d di.Drafter) {
		draft, err := draftReply(context.Background(), d, core.Email{From: "support@example.com", Body: "loop"})
		require.NoError(t, err)
		assert.True(t, draft.Suppressed)
		assert.Empty(t, draft.Reply)
	})
}
