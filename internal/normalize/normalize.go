// Package normalize turns noisy food labels into comparison tokens.
package normalize

import (
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"the": true, "with": true, "and": true, "a": true, "an": true,
	"of": true, "in": true, "on": true, "or": true, "some": true,
	"plate": true, "bowl": true, "piece": true, "pieces": true, "serving": true,
}

// Filler words say nothing about nutrition.
var fillerWords = map[string]bool{
	"fresh": true, "delicious": true, "homemade": true, "tasty": true,
	"yummy": true, "organic": true, "healthy": true, "nice": true,
	"traditional": true, "classic": true, "authentic": true, "style": true,
	"image": true, "photo": true, "picture": true,
}

// Tokens lower-cases raw, drops punctuation, stop words and filler words,
// and returns what is left in order. Underscores and hyphens separate words,
// apostrophes are dropped so "McDonald's" becomes "mcdonalds".
func Tokens(raw string) []string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopWords[f] || fillerWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Key joins tokens into the canonical query string.
func Key(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Label is Key(Tokens(raw)).
func Label(raw string) string {
	return Key(Tokens(raw))
}

// ContainsPhrase reports whether phrase appears in key on word boundaries.
// Both arguments are expected to be normalized keys.
func ContainsPhrase(key, phrase string) bool {
	if key == "" || phrase == "" {
		return false
	}
	return strings.Contains(" "+key+" ", " "+phrase+" ")
}
