package signature

import (
	"strings"
	"unicode"
)

// Trigrams cuts normalized text into character 3-grams per token.
// OCR noise rarely corrupts a whole word, so enough trigrams survive
// a misread letter for BM25 to still find the passage. Tokens shorter
// than three runes are emitted whole. Duplicates are kept because the
// lexical index wants term frequencies.
func Trigrams(text string) []string {
	var grams []string
	for _, tok := range tokenize(text) {
		runes := []rune(tok)
		if len(runes) < 3 {
			grams = append(grams, tok)
			continue
		}
		for i := 0; i+3 <= len(runes); i++ {
			grams = append(grams, string(runes[i:i+3]))
		}
	}
	return grams
}

// TrigramSet is Trigrams deduplicated, for query-side matching.
func TrigramSet(text string) []string {
	grams := Trigrams(text)
	seen := make(map[string]struct{}, len(grams))
	set := grams[:0]
	for _, g := range grams {
		if _, ok := seen[g]; !ok {
			seen[g] = struct{}{}
			set = append(set, g)
		}
	}
	return set
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
