package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/core"
)

const providerName = "bedrock"

// ModelInvoker is the subset of the Bedrock runtime client used here.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements core.LLMClient and core.Embedder using Amazon Bedrock
type BedrockClient struct {
	client           ModelInvoker
	modelID          string
	embeddingModelID string
	temperature      float32
	topP             float32
	logger           *zap.Logger
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client ModelInvoker,
	modelID string,
	embeddingModelID string,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) *BedrockClient {
	return &BedrockClient{
		client:           client,
		modelID:          modelID,
		embeddingModelID: embeddingModelID,
		temperature:      temperature,
		topP:             topP,
		logger:           logger,
	}
}

// Complete invokes the configured text model with prompt.
func (c *BedrockClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload, err := c.completionPayload(prompt, maxTokens)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.invoke(ctx, c.modelID, payload)
	if err != nil {
		return "", err
	}

	text, err := c.completionText(resp.Body)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: empty response from %s: %w", providerName, c.modelID, core.ErrEmptyCompletion)
	}
	return text, nil
}

// Embed returns a Titan text embedding for text.
func (c *BedrockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{"inputText": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding payload: %w", err)
	}
	resp, err := c.invoke(ctx, c.embeddingModelID, payload)
	if err != nil {
		return nil, err
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%s: empty embedding from %s", providerName, c.embeddingModelID)
	}
	return out.Embedding, nil
}

func (c *BedrockClient) invoke(ctx context.Context, modelID string, payload []byte) (*bedrockruntime.InvokeModelOutput, error) {
	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to invoke model %s: %w", modelID, err))
	}
	return resp, nil
}

func (c *BedrockClient) completionPayload(prompt string, maxTokens int) ([]byte, error) {
	switch {
	case c.isAnthropicMessagesModel():
		return json.Marshal(map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       c.temperature,
			"top_p":             c.topP,
			"messages": []map[string]any{
				{"role": "user", "content": prompt},
			},
		})
	case c.isAnthropicModel():
		return json.Marshal(map[string]any{
			"prompt":               "\n\nHuman: " + prompt + "\n\nAssistant:",
			"max_tokens_to_sample": maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]any{
			"inputText": prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
}

func (c *BedrockClient) completionText(body []byte) (string, error) {
	switch {
	case c.isAnthropicMessagesModel():
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var sb strings.Builder
		for _, part := range resp.Content {
			if part.Type == "text" {
				sb.WriteString(part.Text)
			}
		}
		return sb.String(), nil
	case c.isAnthropicModel():
		var resp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return resp.Completion, nil
	case c.isAmazonTitanModel():
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", nil
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal response: %w", err)
		}
		for _, s := range []string{resp.Output, resp.Text, resp.Generation} {
			if s != "" {
				return s, nil
			}
		}
		return "", nil
	}
}

// isAnthropicMessagesModel reports whether the model only accepts the
// messages API (Claude 3 and later).
func (c *BedrockClient) isAnthropicMessagesModel() bool {
	return c.isAnthropicModel() && !strings.HasPrefix(c.modelID, "anthropic.claude-v") &&
		!strings.HasPrefix(c.modelID, "anthropic.claude-instant")
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *BedrockClient) isAnthropicModel() bool {
	return strings.HasPrefix(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}

func classifyError(err error) error {
	var throttled *types.ThrottlingException
	var exhausted *types.ServiceQuotaExceededException
	quota := errors.As(err, &throttled) || errors.As(err, &exhausted)
	return core.ProviderError(providerName, err, quota)
}
