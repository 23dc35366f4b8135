package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mikey/llm-email-responder/internal/core"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("technical"), genai.Text("_support\n")}}},
		},
	}
	assert.Equal(t, "technical_support", responseText(resp))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))
	assert.Empty(t, responseText(nil))
}

func TestClassifyError(t *testing.T) {
	t.Run("grpc resource exhausted", func(t *testing.T) {
		err := classifyError(fmt.Errorf("failed to generate content: %w", status.Error(codes.ResourceExhausted, "quota")))
		assert.True(t, errors.Is(err, core.ErrQuota))
	})

	t.Run("http 429", func(t *testing.T) {
		err := classifyError(fmt.Errorf("failed to embed content: %w", &googleapi.Error{Code: http.StatusTooManyRequests}))
		assert.True(t, errors.Is(err, core.ErrQuota))
	})

	t.Run("deadline", func(t *testing.T) {
		err := classifyError(fmt.Errorf("failed to generate content: %w", context.DeadlineExceeded))
		assert.True(t, errors.Is(err, core.ErrTimeout))
		assert.False(t, errors.Is(err, core.ErrQuota))
	})

	t.Run("other", func(t *testing.T) {
		err := classifyError(errors.New("invalid argument"))
		assert.False(t, errors.Is(err, core.ErrQuota))
		assert.False(t, errors.Is(err, core.ErrTimeout))
		assert.Contains(t, err.Error(), "gemini")
	})
}
