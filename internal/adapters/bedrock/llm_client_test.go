package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/core"
)

type fakeInvoker struct {
	requests map[string]map[string]any
	reply    map[string]string
	err      error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := aws.ToString(in.ModelId)
	var body map[string]any
	if err := json.Unmarshal(in.Body, &body); err != nil {
		return nil, err
	}
	if f.requests == nil {
		f.requests = make(map[string]map[string]any)
	}
	f.requests[id] = body
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.reply[id])}, nil
}

func TestCompleteByModelFamily(t *testing.T) {
	cases := []struct {
		name    string
		modelID string
		reply   string
		check   func(t *testing.T, req map[string]any)
	}{
		{
			name:    "claude messages",
			modelID: "anthropic.claude-3-haiku-20240307-v1:0",
			reply:   `{"content":[{"type":"text","text":"billing"}]}`,
			check: func(t *testing.T, req map[string]any) {
				assert.Equal(t, "bedrock-2023-05-31", req["anthropic_version"])
				assert.EqualValues(t, 10, req["max_tokens"])
			},
		},
		{
			name:    "claude text completions",
			modelID: "anthropic.claude-v2",
			reply:   `{"completion":" billing"}`,
			check: func(t *testing.T, req map[string]any) {
				assert.Contains(t, req["prompt"], "\n\nHuman: ")
				assert.EqualValues(t, 10, req["max_tokens_to_sample"])
			},
		},
		{
			name:    "titan",
			modelID: "amazon.titan-text-express-v1",
			reply:   `{"results":[{"outputText":"billing\n"}]}`,
			check: func(t *testing.T, req map[string]any) {
				assert.Equal(t, "which category?", req["inputText"])
			},
		},
		{
			name:    "generic",
			modelID: "meta.llama3-8b-instruct-v1:0",
			reply:   `{"generation":"billing"}`,
			check: func(t *testing.T, req map[string]any) {
				assert.EqualValues(t, 10, req["max_tokens"])
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := &fakeInvoker{reply: map[string]string{tc.modelID: tc.reply}}
			c := NewBedrockClient(inv, tc.modelID, "amazon.titan-embed-text-v2:0", 0.1, 0.9, zap.NewNop())

			out, err := c.Complete(context.Background(), "which category?", 10)
			require.NoError(t, err)
			assert.Equal(t, "billing", out)
			tc.check(t, inv.requests[tc.modelID])
		})
	}
}

func TestEmbed(t *testing.T) {
	inv := &fakeInvoker{reply: map[string]string{"amazon.titan-embed-text-v2:0": `{"embedding":[0.5,0.5],"inputTextTokenCount":2}`}}
	c := NewBedrockClient(inv, "anthropic.claude-v2", "amazon.titan-embed-text-v2:0", 0.1, 0.9, zap.NewNop())

	vec, err := c.Embed(context.Background(), "refund")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Equal(t, "refund", inv.requests["amazon.titan-embed-text-v2:0"]["inputText"])
}

func TestEmptyCompletion(t *testing.T) {
	inv := &fakeInvoker{reply: map[string]string{"amazon.titan-text-express-v1": `{"results":[]}`}}
	c := NewBedrockClient(inv, "amazon.titan-text-express-v1", "", 0.1, 0.9, zap.NewNop())

	_, err := c.Complete(context.Background(), "hi", 10)
	assert.ErrorIs(t, err, core.ErrEmptyCompletion)
}

func TestThrottlingIsQuota(t *testing.T) {
	inv := &fakeInvoker{err: &types.ThrottlingException{Message: aws.String("slow down")}}
	c := NewBedrockClient(inv, "anthropic.claude-v2", "amazon.titan-embed-text-v2:0", 0.1, 0.9, zap.NewNop())

	_, err := c.Complete(context.Background(), "hi", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrQuota))

	_, err = c.Embed(context.Background(), "hi")
	assert.True(t, errors.Is(err, core.ErrQuota))
}
