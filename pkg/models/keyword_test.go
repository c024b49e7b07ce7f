package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhrase(t *testing.T) {
	assert.Equal(t, "email marketing", NormalizePhrase("  Email   MARKETING "))
	assert.Equal(t, "", NormalizePhrase("   "))
	assert.Equal(t, NormalizePhrase("crm software"), NormalizePhrase(NormalizePhrase("crm software")))
}

func TestNormalizePhrase_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ü", 200) // 400 bytes of two-byte runes
	out := NormalizePhrase(long)
	assert.LessOrEqual(t, len(out), MaxPhraseLength)
	assert.True(t, utf8.ValidString(out), "truncation must not split a rune")
	assert.Len(t, out, 254, "byte 255 lands mid-rune, cut back to the boundary")
	assert.Equal(t, out, NormalizePhrase(out))

	ascii := strings.Repeat("a", 300)
	assert.Len(t, NormalizePhrase(ascii), MaxPhraseLength)
}

func TestTokenCount(t *testing.T) {
	assert.Equal(t, 2, TokenCount("crm software"))
	assert.Equal(t, 0, TokenCount("   "))
}
