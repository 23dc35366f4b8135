package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTextProcessor(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	t.Run("clip keeps utf8 boundaries", func(t *testing.T) {
		got := tp.Clip("héllo", 2)
		assert.Equal(t, "h", got)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, "hello", tp.Clip("hello", 0))
	})

	t.Run("truncate marks the cut", func(t *testing.T) {
		assert.Equal(t, "short", tp.TruncateText("short", 100))
		got := tp.TruncateText(strings.Repeat("a", 50), 10)
		assert.Equal(t, strings.Repeat("a", 10)+TruncationMarker, got)
	})

	t.Run("limit runes counts the suffix", func(t *testing.T) {
		text := "Thank you for reaching out about the duplicate charge on your account"
		got := tp.LimitRunes(text, 30, "...")
		assert.LessOrEqual(t, utf8.RuneCountInString(got), 30)
		assert.True(t, strings.HasSuffix(got, "..."))
		assert.Equal(t, text, tp.LimitRunes(text, 500, "..."))
		assert.Equal(t, "..", tp.LimitRunes(text, 2, "..."))
	})

	t.Run("sanitize drops invalid bytes", func(t *testing.T) {
		assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
		assert.Equal(t, "ok", tp.SanitizeUTF8("ok"))
	})

	t.Run("process text", func(t *testing.T) {
		got := tp.ProcessText("a\xffbcdef", 3)
		assert.True(t, utf8.ValidString(got))
		assert.True(t, strings.HasSuffix(got, TruncationMarker))
	})
}
