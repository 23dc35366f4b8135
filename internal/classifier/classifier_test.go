package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/adapters/cache"
	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/fingerprint"
	"github.com/mikey/llm-email-responder/internal/testutil"
	"github.com/mikey/llm-email-responder/internal/utils"
)

func newClassifier(t *testing.T, llm core.LLMClient) (*Classifier, *cache.Namespaced) {
	t.Helper()
	store, err := cache.NewMemoryCache(zap.NewNop(), 64, 0)
	require.NoError(t, err)
	ns := cache.NewNamespaced(store, cache.NamespaceClassification, time.Hour, true, zap.NewNop())
	c := New(llm, ns, utils.NewTextProcessor(zap.NewNop()), Options{MaxBodySize: 4096, Timeout: time.Second}, zap.NewNop())
	return c, ns
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	email := core.Email{ID: "m1", Subject: "Charge", Body: "I was charged twice this month"}

	t.Run("second call within ttl hits the cache", func(t *testing.T) {
		llm := testutil.NewScriptedLLM("billing")
		c, _ := newClassifier(t, llm)

		first := c.Classify(ctx, email)
		second := c.Classify(ctx, email)

		assert.Equal(t, core.IntentBilling, first.Intent)
		assert.Equal(t, first.Intent, second.Intent)
		assert.False(t, first.Cached)
		assert.True(t, second.Cached)
		assert.Equal(t, 1, llm.Calls())
	})

	t.Run("prompt lists every category", func(t *testing.T) {
		llm := testutil.NewScriptedLLM("general")
		c, _ := newClassifier(t, llm)
		c.Classify(ctx, email)
		require.Len(t, llm.Prompts(), 1)
		prompt := llm.Prompts()[0]
		for _, in := range core.AllIntents() {
			assert.Contains(t, prompt, "- "+in.String()+":")
		}
		assert.Contains(t, prompt, email.Body)
		assert.True(t, testutil.IsClassifyPrompt(prompt))
	})

	t.Run("unparsable answer falls back to general and is cached", func(t *testing.T) {
		llm := testutil.NewScriptedLLM("I am not sure, maybe shipping?")
		c, _ := newClassifier(t, llm)

		res := c.Classify(ctx, email)
		assert.Equal(t, core.IntentGeneral, res.Intent)
		assert.True(t, res.Degraded)

		again := c.Classify(ctx, email)
		assert.Equal(t, core.IntentGeneral, again.Intent)
		assert.True(t, again.Cached)
		assert.Equal(t, 1, llm.Calls())
	})

	t.Run("provider error falls back to general without caching", func(t *testing.T) {
		llm := &testutil.ScriptedLLM{Respond: func(context.Context, string) (string, error) {
			return "", core.ErrQuota
		}}
		c, _ := newClassifier(t, llm)

		res := c.Classify(ctx, email)
		assert.Equal(t, core.IntentGeneral, res.Intent)
		assert.True(t, res.Degraded)

		c.Classify(ctx, email)
		assert.Equal(t, 2, llm.Calls())
	})

	t.Run("timeout is treated as provider error", func(t *testing.T) {
		llm := &testutil.ScriptedLLM{Respond: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}}
		c, _ := newClassifier(t, llm)
		c.opts.Timeout = 10 * time.Millisecond

		res := c.Classify(ctx, email)
		assert.Equal(t, core.IntentGeneral, res.Intent)
		assert.True(t, res.Degraded)
	})

	t.Run("invalid cached value is discarded", func(t *testing.T) {
		llm := testutil.NewScriptedLLM("feature_request")
		c, ns := newClassifier(t, llm)
		other := core.Email{ID: "m2", Body: "Please add dark mode"}
		c.Classify(ctx, other)
		ns.Store(ctx, keyFor(other), "nonsense")

		res := c.Classify(ctx, other)
		assert.Equal(t, core.IntentFeatureRequest, res.Intent)
		assert.False(t, res.Cached)
		assert.Equal(t, 2, llm.Calls())
	})

	t.Run("cache outage does not fail classification", func(t *testing.T) {
		llm := testutil.NewScriptedLLM("technical_support")
		ns := cache.NewNamespaced(downStore{}, cache.NamespaceClassification, time.Hour, true, zap.NewNop())
		c := New(llm, ns, utils.NewTextProcessor(zap.NewNop()), Options{}, zap.NewNop())
		res := c.Classify(ctx, core.Email{Body: "The app crashes"})
		assert.Equal(t, core.IntentTechnicalSupport, res.Intent)
	})
}

func keyFor(e core.Email) string {
	return fingerprint.Of(e.Body)
}

func TestParseLabel(t *testing.T) {
	cases := map[string]core.Intent{
		"billing":                                     core.IntentBilling,
		"  Billing.\n":                                core.IntentBilling,
		"`technical_support`":                         core.IntentTechnicalSupport,
		"Technical support":                           core.IntentTechnicalSupport,
		"feature-request":                             core.IntentFeatureRequest,
		"Category: feature request":                   core.IntentFeatureRequest,
		"\"general\"":                                 core.IntentGeneral,
		"The answer is: billing, clearly":             core.IntentBilling,
		"not billing, technical support":              core.IntentTechnicalSupport,
		"This isn't billing. It is a feature request": core.IntentFeatureRequest,
		"In general terms this is billing":            core.IntentBilling,
	}
	for in, want := range cases {
		got, ok := ParseLabel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "shipping", strings.Repeat("?", 10), "billing or technical support", "not billing"} {
		_, ok := ParseLabel(bad)
		assert.False(t, ok, bad)
	}
}

type downStore struct{}

func (downStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("dial tcp: connection refused")
}

func (downStore) Put(context.Context, string, string, time.Duration) error {
	return errors.New("dial tcp: connection refused")
}

func (downStore) Invalidate(context.Context, string) error {
	return errors.New("dial tcp: connection refused")
}
