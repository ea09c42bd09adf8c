package repair

import (
	"html"
	"regexp"
	"strings"

	"github.com/ak125/contentgate/internal/gate"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/textproc"
)

// #region block-edit

// minBlockWords is the smallest paragraph left standing after surgery.
const minBlockWords = 3

var wordSpanRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}-]*`)

// editBlocks removes the spans chosen by pick from every non-heading block of page.
// Spans are cut from the block's own HTML when they appear there verbatim;
// otherwise the block is rebuilt from its edited plain text. Blocks left with
// fewer than minBlockWords words are dropped.
func editBlocks(page string, pick func(text string) []string) (string, int) {
	doc := textproc.Parse(page)
	var out []string
	removed := 0
	for _, b := range doc.Blocks() {
		if b.IsHeading() || b.Text == "" {
			out = append(out, b.HTML)
			continue
		}
		spans := pick(b.Text)
		if len(spans) == 0 {
			out = append(out, b.HTML)
			continue
		}
		removed += len(spans)

		edited, text := b.HTML, b.Text
		verbatim := true
		for _, span := range spans {
			text = strings.Replace(text, span, "", 1)
			switch {
			case strings.Contains(edited, span):
				edited = strings.Replace(edited, span, "", 1)
			case strings.Contains(edited, html.EscapeString(span)):
				edited = strings.Replace(edited, html.EscapeString(span), "", 1)
			default:
				verbatim = false
			}
		}
		text = strings.TrimSpace(textproc.TidyPunctuation(text))
		if textproc.WordCount(text) < minBlockWords {
			continue
		}
		if !verbatim {
			edited = rebuild(b.Tag, text)
		}
		out = append(out, textproc.TidyPunctuation(edited))
	}
	if removed == 0 {
		return page, 0
	}
	return strings.Join(out, "\n"), removed
}

func rebuild(tag, text string) string {
	body := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
	if tag == "#text" || tag == "" {
		return "<p>" + body + "</p>"
	}
	return "<" + tag + ">" + body + "</" + tag + ">"
}

// sentencesIn returns the sentences of text that satisfy keep.
func sentencesIn(text string, keep func(string) bool) []string {
	var out []string
	for _, s := range textproc.Sentences(text) {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// #endregion

// #region strip-unsourced

// StripUnsourced cuts every numeric claim whose normalized token no evidence
// excerpt carries. Commercial boilerplate is left alone, as the gate ignores it.
func StripUnsourced(page string, evidence []string, patterns *policy.Patterns) (string, int) {
	known := evidenceTokens(evidence)
	return editBlocks(page, func(text string) []string {
		var spans []string
		for _, sentence := range textproc.Sentences(text) {
			if patterns.IsMarketing(textproc.Fold(sentence)) {
				continue
			}
			for _, c := range textproc.ExtractNumericClaims(sentence) {
				if !known[c.Token] {
					spans = append(spans, c.Raw)
				}
			}
		}
		return spans
	})
}

func evidenceTokens(evidence []string) map[string]bool {
	known := make(map[string]bool)
	for _, excerpt := range evidence {
		for token := range textproc.NumericTokens(excerpt) {
			known[token] = true
		}
	}
	return known
}

// #endregion

// #region strip-novel

// StripNovelTerms removes, block by block, each word the no-guess gate would
// report as unknown.
func StripNovelTerms(page string, allow gate.AllowList, minLen, technicalLen int) (string, int) {
	return editBlocks(page, func(text string) []string {
		novel := make(map[string]bool)
		for _, term := range gate.NovelTerms(text, allow, minLen, technicalLen) {
			novel[term] = true
		}
		if len(novel) == 0 {
			return nil
		}
		var spans []string
		for _, w := range wordSpanRe.FindAllString(text, -1) {
			if novel[strings.Trim(textproc.Fold(w), "-")] {
				spans = append(spans, w)
			}
		}
		return spans
	})
}

// #endregion

// #region delete-leaks

// DeleteLeaks removes every sentence the scope-leakage gate flags.
func DeleteLeaks(page, itemLabel string, patterns *policy.Patterns, minWords int) (string, int) {
	anchors := textproc.Parse(page).InternalLinks()
	return editBlocks(page, func(text string) []string {
		return gate.LeakingSentences(text, itemLabel, anchors, patterns, minWords)
	})
}

// #endregion

// #region contradictions

// KeepEvidenced resolves each contradicting pair by deleting the sentence whose
// claims the evidence backs less; on a tie the later sentence goes.
func KeepEvidenced(page string, evidence []string, minShared int, relTol float64) (string, int) {
	known := evidenceTokens(evidence)
	sentences := textproc.Sentences(textproc.Parse(page).Plain())
	doomed := make(map[string]bool)
	for _, p := range gate.ContradictingPairs(sentences, minShared, relTol) {
		a, b := sentences[p.A], sentences[p.B]
		if doomed[a] || doomed[b] {
			continue
		}
		if sourcedClaims(a, known) > sourcedClaims(b, known) {
			doomed[b] = true
		} else if sourcedClaims(b, known) > sourcedClaims(a, known) {
			doomed[a] = true
		} else {
			doomed[b] = true
		}
	}
	return deleteSentences(page, doomed)
}

// DeleteConflicts deletes both sentences of every contradicting pair.
func DeleteConflicts(page string, minShared int, relTol float64) (string, int) {
	sentences := textproc.Sentences(textproc.Parse(page).Plain())
	doomed := make(map[string]bool)
	for _, p := range gate.ContradictingPairs(sentences, minShared, relTol) {
		doomed[sentences[p.A]] = true
		doomed[sentences[p.B]] = true
	}
	return deleteSentences(page, doomed)
}

func sourcedClaims(sentence string, known map[string]bool) int {
	n := 0
	for _, c := range textproc.ExtractNumericClaims(sentence) {
		if known[c.Token] {
			n++
		}
	}
	return n
}

func deleteSentences(page string, doomed map[string]bool) (string, int) {
	if len(doomed) == 0 {
		return page, 0
	}
	return editBlocks(page, func(text string) []string {
		return sentencesIn(text, func(s string) bool { return doomed[s] })
	})
}

// #endregion
