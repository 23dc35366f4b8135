package policy

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/mikey/llm-email-responder/internal/core"
	"github.com/mikey/llm-email-responder/internal/fingerprint"
)

// Chunker splits documents into overlapping, size-bounded chunks. Sizes are
// measured in runes.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the size/overlap pair.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 {
		return nil, errors.New("chunk overlap cannot be negative")
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split cuts doc into chunks without vectors. Separators are tried from
// paragraph down to single characters so chunks break on the largest
// boundary that fits. Chunk ids carry a digest of the chunk text, so an
// edited passage never reuses an old id.
func (c *Chunker) Split(doc Document) ([]core.PolicyChunk, error) {
	text := strings.ReplaceAll(doc.Text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.size),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)
	segments, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split document %s: %w", doc.ID, err)
	}

	chunks := make([]core.PolicyChunk, 0, len(segments))
	cursor := 0
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		offset := -1
		if at := strings.Index(text[cursor:], segment); at >= 0 {
			start := cursor + at
			offset = utf8.RuneCountInString(text[:start])
			_, first := utf8.DecodeRuneInString(segment)
			// The next chunk starts no earlier than overlap runes before
			// this one ends.
			cursor = max(start+first, backRunes(text, start+len(segment), c.overlap))
		} else if at := strings.Index(text, segment); at >= 0 {
			offset = utf8.RuneCountInString(text[:at])
		}
		idx := len(chunks)
		chunks = append(chunks, core.PolicyChunk{
			ID:         fmt.Sprintf("%s#%d-%s", doc.ID, idx, fingerprint.Of(segment)[:8]),
			DocumentID: doc.ID,
			Title:      doc.Title,
			Category:   doc.Category,
			Index:      idx,
			Offset:     offset,
			Length:     utf8.RuneCountInString(segment),
			Text:       segment,
		})
	}
	return chunks, nil
}

// backRunes returns the byte index n runes before end in s.
func backRunes(s string, end, n int) int {
	for ; n > 0 && end > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:end])
		end -= size
	}
	return end
}
