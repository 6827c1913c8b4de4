package graphql

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/alecthomas/assert/v2"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "ő" is two bytes, so the limit falls inside a rune.
	message := "x" + strings.Repeat("ő", maxMessageLength)
	got := truncate(message)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
	body := strings.TrimSuffix(got, "…")
	assert.True(t, len(body) <= maxMessageLength)
	assert.Equal(t, maxMessageLength-1, len(body))
	assert.True(t, strings.HasPrefix(message, body))

	assert.Equal(t, "árvíztűrő", truncate("  árvíztűrő\n"))
}
