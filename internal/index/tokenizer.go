package index

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Tokenize implements spec §4.6's tokenization algorithm: lowercase ->
// replace non-word characters with spaces -> collapse whitespace -> split
// -> drop tokens of length <= 2 -> remove the language's stop words.
func Tokenize(content, lang string) []string {
	lower := strings.ToLower(content)
	spaced := nonWord.ReplaceAllString(lower, " ")
	fields := strings.Fields(spaced)

	stop := stopWordsFor(lang)
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if len(tok) <= 2 {
			continue
		}
		if _, isStop := stop[tok]; isStop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TermFrequencies counts occurrences of each token, the tf[t] input to
// the per-document indexing score (spec §4.6 step 3).
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
