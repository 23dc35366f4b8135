package core

import (
	"context"
	"time"
)

// LLMClient issues single-shot completions against a language model.
type LLMClient interface {
	// Complete returns the model's text for prompt, producing at most maxTokens.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MailGateway is the narrow contract the pipeline needs from an email provider.
type MailGateway interface {
	// FetchUnread returns up to maxCount unread messages.
	FetchUnread(ctx context.Context, maxCount int) ([]Email, error)

	// SendReply sends reply text as a response to original.
	SendReply(ctx context.Context, original Email, reply string) error

	// MarkProcessed flags the message so it is not fetched again.
	MarkProcessed(ctx context.Context, messageID string) error
}

// CacheStore is a string key/value store with per-entry expiry.
type CacheStore interface {
	// Get returns the live value for key. A missing or expired entry is
	// reported with ok == false and a nil error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Put stores value under key until ttl elapses.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Invalidate removes key.
	Invalidate(ctx context.Context, key string) error
}

// ProcessedLedger remembers which provider message ids have been answered.
type ProcessedLedger interface {
	Contains(ctx context.Context, messageID string) (bool, error)
	Add(ctx context.Context, messageID string) error
}

// Pinger is implemented by components that can report their own readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
