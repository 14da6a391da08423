package util

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "", Truncate("abc", 0))

	// "é" is two bytes; a cut inside it backs off to the rune start
	got := Truncate("aéé", 4)
	assert.Equal(t, "aé", got)
	assert.True(t, utf8.ValidString(got))

	got = Truncate("日本語", 5)
	assert.Equal(t, "日", got)
}
