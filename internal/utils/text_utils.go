package utils

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// TruncationMarker is appended to prompt text cut for size.
const TruncationMarker = "\n[... Content truncated due to size limits ...]"

// TextProcessor bounds and cleans text before it reaches a model or a reader.
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// Clip cuts text to at most maxSize bytes without splitting a UTF-8 sequence.
// A non-positive maxSize disables the limit.
func (tp *TextProcessor) Clip(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}
	cut := text[:maxSize]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// TruncateText clips text to maxSize bytes and marks the cut so the model
// knows the body is incomplete.
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	cut := tp.Clip(text, maxSize)
	if len(cut) == len(text) {
		return text
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(cut)),
		zap.Int("max_size", maxSize))

	return cut + TruncationMarker
}

// LimitRunes shortens text to at most maxRunes runes including suffix,
// preferring to break at the last whitespace.
func (tp *TextProcessor) LimitRunes(text string, maxRunes int, suffix string) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	keep := maxRunes - utf8.RuneCountInString(suffix)
	if keep <= 0 {
		return string([]rune(suffix)[:maxRunes])
	}
	runes := []rune(text)[:keep]
	cut := string(runes)
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t") + suffix
}

// SanitizeUTF8 drops invalid UTF-8 bytes.
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	cleaned := strings.ToValidUTF8(text, "")

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(cleaned)))

	return cleaned
}

// ProcessText truncates and sanitizes text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}
