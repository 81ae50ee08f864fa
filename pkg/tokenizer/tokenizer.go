package tokenizer

import (
	"strings"
	"unicode"
)

// CountTokens provides a rough token count estimate.
// TODO: integrate tiktoken-go for model-specific exact counts.
func CountTokens(text string) int {
	// ~4/3 tokens per space-separated word. Scripts written without spaces
	// (Han, Hiragana, Katakana, Hangul, Thai) run close to one token per rune.
	var words, dense int
	for _, field := range strings.Fields(text) {
		n := 0
		for _, r := range field {
			if isDense(r) {
				n++
			}
		}
		if n == 0 {
			words++
			continue
		}
		dense += n
		if n < len([]rune(field)) {
			words++
		}
	}
	return max(words*4/3+dense, 1)
}

func isDense(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul, unicode.Thai)
}
