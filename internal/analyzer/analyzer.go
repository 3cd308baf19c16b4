// Package analyzer turns raw text into the normalized token stream the
// inverted index and the ranker operate on (§4.1).
package analyzer

import (
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
)

// stopWords is the required English stop-word set, exactly 26 words.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "that": {},
	"the": {}, "to": {}, "was": {}, "were": {}, "will": {}, "with": {},
}

// Analyze runs the fixed pipeline in order: lowercase, split on
// non-letter/non-digit runs, stop-word filter, stem, drop empties. Stop-word
// removal happens before stemming, so stop words are matched in their
// surface form.
func Analyze(text string) []string {
	lowered := strings.ToLower(text)

	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tokens = append(tokens, cur.String())
		cur.Reset()
	}
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		stemmed := snowballeng.Stem(tok, false)
		if stemmed == "" {
			continue
		}
		out = append(out, stemmed)
	}
	return out
}
