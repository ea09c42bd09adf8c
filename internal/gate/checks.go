package gate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/textproc"
)

// #region attribution
// Attribution measures the share of numeric-with-unit claims that no evidence
// excerpt backs. Commercial boilerplate sentences are exempt.
func (e *Engine) Attribution(in Input) Result {
	known := make(map[string]bool)
	for _, excerpt := range in.Evidence {
		for token := range textproc.NumericTokens(excerpt) {
			known[token] = true
		}
	}

	total, unsourced := 0, 0
	var triggers []Trigger
	for i, sentence := range textproc.Sentences(in.Doc.Plain()) {
		if e.patterns.IsMarketing(textproc.Fold(sentence)) {
			continue
		}
		for _, c := range textproc.ExtractNumericClaims(sentence) {
			total++
			if known[c.Token] {
				continue
			}
			unsourced++
			triggers = append(triggers, Trigger{
				Location: fmt.Sprintf("sentence %d", i+1),
				Issue:    fmt.Sprintf("unsourced claim %q", c.Raw),
			})
		}
	}

	if total == 0 {
		r := grade(Attribution, e.config.Attribution, 0, true)
		r.Details = []string{"no numeric claims"}
		return r
	}
	ratio := float64(unsourced) / float64(total)
	r := grade(Attribution, e.config.Attribution, ratio, true)
	r.Details = []string{fmt.Sprintf("%d of %d claims unsourced (ratio %.2f)", unsourced, total, ratio)}
	r.Triggers = triggers
	return r
}

// #endregion attribution

// #region no-guess
// NoGuess counts technical-looking terms that appear nowhere in the allow-list.
func (e *Engine) NoGuess(in Input) Result {
	novel := NovelTerms(in.Doc.Plain(), in.AllowList, e.config.NoGuessMinLen, e.config.TechnicalLen)
	r := grade(NoGuess, e.config.NoGuess, float64(len(novel)), true)
	if len(novel) > 0 {
		r.Details = []string{"novel terms: " + strings.Join(novel, ", ")}
	}
	for _, term := range novel {
		r.Triggers = append(r.Triggers, Trigger{Location: term, Issue: "term absent from item description and evidence"})
	}
	return r
}

// NovelTerms returns the technical-looking tokens of text absent from allow.
// Bare numbers are left to the attribution gate.
func NovelTerms(text string, allow AllowList, minLen, technicalLen int) []string {
	var novel []string
	for _, tok := range textproc.Tokenize(text, minLen) {
		if isNumber(tok) || !looksTechnical(tok, technicalLen) || allow.Contains(tok) {
			continue
		}
		novel = append(novel, tok)
	}
	return novel
}

func looksTechnical(tok string, technicalLen int) bool {
	return strings.IndexFunc(tok, unicode.IsDigit) >= 0 ||
		strings.Contains(tok, "-") ||
		len([]rune(tok)) > technicalLen
}

func isNumber(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return true
}

// #endregion no-guess

// #region scope-leakage
// ScopeLeakage flags long sentences that pair a numeric claim with a procedural
// verb but never name the target item. Cross-links and calls to action are exempt.
func (e *Engine) ScopeLeakage(in Input) Result {
	anchors := in.Doc.InternalLinks()
	var triggers []Trigger
	for i, sentence := range LeakingSentences(in.Doc.Plain(), in.ItemLabel, anchors, e.patterns, e.config.ScopeMinWords) {
		triggers = append(triggers, Trigger{
			Location: fmt.Sprintf("leak %d", i+1),
			Issue:    fmt.Sprintf("off-scope procedure: %q", sentence),
		})
	}
	r := grade(ScopeLeakage, e.config.ScopeLeakage, float64(len(triggers)), true)
	r.Details = []string{fmt.Sprintf("%d leaking sentences", len(triggers))}
	r.Triggers = triggers
	return r
}

// LeakingSentences returns the sentences of text that leak out of the item's scope.
func LeakingSentences(text, itemLabel string, anchors []string, patterns *policy.Patterns, minWords int) []string {
	itemTerms := itemStems(itemLabel)
	var out []string
	for _, sentence := range textproc.Sentences(text) {
		if textproc.WordCount(sentence) < minWords {
			continue
		}
		folded := textproc.Fold(sentence)
		if len(textproc.ExtractNumericClaims(sentence)) == 0 || !patterns.ProceduralVerbs.MatchString(folded) {
			continue
		}
		if mentionsItem(folded, itemLabel, itemTerms) || patterns.HasCTA(folded) || containsAny(folded, anchors) {
			continue
		}
		out = append(out, sentence)
	}
	return out
}

func itemStems(label string) []string {
	var stems []string
	for term := range textproc.SignificantTerms(label) {
		stems = append(stems, strings.TrimSuffix(term, "s"))
	}
	sort.Strings(stems)
	return stems
}

// mentionsItem requires the whole label, or every significant stem of it.
func mentionsItem(folded, label string, stems []string) bool {
	if l := textproc.Fold(strings.TrimSpace(label)); l != "" && strings.Contains(folded, l) {
		return true
	}
	if len(stems) == 0 {
		return false
	}
	for _, stem := range stems {
		if !strings.Contains(folded, stem) {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// #endregion scope-leakage

// #region contradiction
// Contradiction compares every pair of claim-bearing sentences; two sentences about
// the same thing whose values for a shared unit differ beyond tolerance contradict.
func (e *Engine) Contradiction(in Input) Result {
	pairs := ContradictingPairs(textproc.Sentences(in.Doc.Plain()), e.config.ContradictionShared, e.config.ContradictionRelTol)
	r := grade(Contradiction, e.config.Contradiction, float64(len(pairs)), true)
	for _, p := range pairs {
		r.Triggers = append(r.Triggers, Trigger{
			Location: fmt.Sprintf("sentences %d/%d", p.A+1, p.B+1),
			Issue:    fmt.Sprintf("%s contradicts %s", p.ClaimA, p.ClaimB),
		})
	}
	r.Details = []string{fmt.Sprintf("%d contradicting pairs", len(pairs))}
	return r
}

// Pair is two contradicting sentences, by index, with the clashing claims.
type Pair struct {
	A, B           int
	ClaimA, ClaimB string
}

type claimSentence struct {
	index  int
	terms  map[string]bool
	claims []textproc.NumericClaim
}

// ContradictingPairs finds sentence pairs sharing at least minShared significant
// terms whose same-unit values differ by more than relTol.
func ContradictingPairs(sentences []string, minShared int, relTol float64) []Pair {
	var withClaims []claimSentence
	for i, s := range sentences {
		claims := textproc.ExtractNumericClaims(s)
		if len(claims) == 0 {
			continue
		}
		withClaims = append(withClaims, claimSentence{index: i, terms: textproc.SignificantTerms(s), claims: claims})
	}

	var pairs []Pair
	for i := 0; i < len(withClaims); i++ {
		for j := i + 1; j < len(withClaims); j++ {
			a, b := withClaims[i], withClaims[j]
			if textproc.SharedCount(a.terms, b.terms) < minShared {
				continue
			}
			if ca, cb, ok := clash(a.claims, b.claims, relTol); ok {
				pairs = append(pairs, Pair{A: a.index, B: b.index, ClaimA: ca, ClaimB: cb})
			}
		}
	}
	return pairs
}

func clash(as, bs []textproc.NumericClaim, relTol float64) (string, string, bool) {
	for _, a := range as {
		for _, b := range bs {
			if a.Unit != b.Unit {
				continue
			}
			if relativeDiff(midpoint(a), midpoint(b)) > relTol {
				return a.Raw, b.Raw, true
			}
		}
	}
	return "", "", false
}

func midpoint(c textproc.NumericClaim) float64 {
	return (c.Value + c.Upper) / 2
}

func relativeDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

// #endregion contradiction

// #region structural
// Structural checks the page skeleton: enough second-level headings and text.
func (e *Engine) Structural(in Input) Result {
	var details []string
	if h2 := in.Doc.HeadingCount(2); h2 < e.config.MinHeadings {
		details = append(details, fmt.Sprintf("%d h2 headings, need %d", h2, e.config.MinHeadings))
	}
	if n := len([]rune(in.Doc.Plain())); n < e.config.MinPlainChars {
		details = append(details, fmt.Sprintf("%d plain-text chars, need %d", n, e.config.MinPlainChars))
	}
	r := grade(Structural, e.config.Structural, float64(len(details)), true)
	r.Details = details
	return r
}

// #endregion structural
