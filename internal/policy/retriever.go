package policy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/utils"
)

// Retriever selects the policy passages relevant to an email.
type Retriever struct {
	index         *Index
	topK          int
	maxQuerySize  int
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
}

// NewRetriever returns at most topK chunks per email. Queries longer than
// maxQuerySize bytes are cut before embedding.
func NewRetriever(index *Index, topK, maxQuerySize int, textProcessor *utils.TextProcessor, logger *zap.Logger) *Retriever {
	return &Retriever{
		index:         index,
		topK:          topK,
		maxQuerySize:  maxQuerySize,
		textProcessor: textProcessor,
		logger:        logger,
	}
}

// Query derives the search text for an email: its body, or the subject when
// the body is blank.
func (r *Retriever) Query(email core.Email) string {
	q := strings.TrimSpace(email.Body)
	if q == "" {
		q = strings.TrimSpace(email.Subject)
	}
	return r.textProcessor.SanitizeUTF8(r.textProcessor.Clip(q, r.maxQuerySize))
}

// Retrieve returns the chunks for email, best first, filtered by intent. The
// intent is taken as given and never re-derived from the results.
func (r *Retriever) Retrieve(ctx context.Context, intent core.Intent, email core.Email) ([]core.PolicyChunk, error) {
	scored, err := r.index.TopK(ctx, intent, r.Query(email), r.topK)
	if err != nil {
		return nil, err
	}
	chunks := make([]core.PolicyChunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.Chunk
		r.logger.Debug("Retrieved policy chunk",
			zap.String("message_id", email.ID),
			zap.String("chunk_id", s.Chunk.ID),
			zap.Float64("score", s.Score))
	}
	return chunks, nil
}

// Index exposes the underlying index.
func (r *Retriever) Index() *Index {
	return r.index
}
