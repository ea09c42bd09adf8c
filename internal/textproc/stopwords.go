package textproc

import (
	"strings"
	"unicode"
)

// #region stopwords
// stopwords contains common English and French words excluded from term matching.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"being": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "not": true,
	"no": true, "and": true, "or": true, "but": true, "if": true,
	"then": true, "than": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "about": true,
	"up": true, "out": true, "it": true, "its": true, "this": true,
	"that": true, "what": true, "which": true, "who": true, "how": true,
	"when": true, "where": true, "why": true, "you": true, "your": true,
	"we": true, "our": true, "they": true, "their": true, "them": true,
	"these": true, "those": true, "there": true, "here": true, "each": true,
	"every": true, "also": true, "more": true, "most": true, "other": true,
	"some": true, "such": true, "only": true, "very": true, "just": true,
	"after": true, "before": true, "between": true, "during": true, "while": true,
	"le": true, "la": true, "les": true, "un": true, "une": true,
	"des": true, "du": true, "de": true, "et": true, "ou": true,
	"en": true, "au": true, "aux": true, "pour": true, "par": true,
	"sur": true, "dans": true, "avec": true, "sans": true, "est": true,
	"sont": true, "votre": true, "vos": true, "nous": true, "vous": true,
	"il": true, "elle": true, "ils": true, "elles": true, "ce": true,
	"cette": true, "ces": true, "qui": true, "que": true, "quand": true,
	"comment": true, "plus": true, "tous": true, "tout": true, "leur": true,
}

// IsStopword reports whether a folded word is a stop-word.
func IsStopword(w string) bool {
	return stopwords[w]
}

// Words splits text into folded words, keeping inner hyphens and digits.
func Words(text string) []string {
	return strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// Tokenize returns unique folded non-stopword tokens longer than minLen runes, in order of first appearance.
func Tokenize(text string, minLen int) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range Words(text) {
		w = strings.Trim(w, "-")
		if len([]rune(w)) <= minLen || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// SignificantTerms returns the set of tokens longer than 3 runes that carry no digits.
func SignificantTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, t := range Tokenize(text, 3) {
		if strings.IndexFunc(t, unicode.IsDigit) >= 0 || unitWords[t] {
			continue
		}
		terms[t] = true
	}
	return terms
}

// SharedCount returns how many keys are present in both sets.
func SharedCount(a, b map[string]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	count := 0
	for t := range a {
		if b[t] {
			count++
		}
	}
	return count
}

// #endregion stopwords
