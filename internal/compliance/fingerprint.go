package compliance

import (
	"math"
	"sort"
	"strings"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/textproc"
)

// #region fingerprint
// Fingerprint is a sparse, L2-normalised TF-IDF term vector.
type Fingerprint map[string]float64

// SectionFingerprint is a stored fingerprint of one role's section, or of the
// whole page when Section is content.SectionUnknown.
type SectionFingerprint struct {
	Role    content.Role       `json:"role"`
	Section content.SectionKey `json:"section"`
	Vector  Fingerprint        `json:"vector"`
}

// NewFingerprint weights each term by 1+ln(count) times the pseudo-IDF
// ln((total+1)/(count+1))+1, keeps the maxTerms heaviest and L2-normalises.
func NewFingerprint(text string, maxTerms, minLen int) Fingerprint {
	counts := make(map[string]int)
	total := 0
	for _, w := range textproc.Words(text) {
		w = strings.Trim(w, "-")
		if len([]rune(w)) <= minLen || textproc.IsStopword(w) || isNumeric(w) {
			continue
		}
		counts[w]++
		total++
	}
	if total == 0 {
		return Fingerprint{}
	}

	type weighted struct {
		term   string
		weight float64
	}
	terms := make([]weighted, 0, len(counts))
	for term, n := range counts {
		tf := 1 + math.Log(float64(n))
		idf := math.Log(float64(total+1)/float64(n+1)) + 1
		terms = append(terms, weighted{term, tf * idf})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].weight != terms[j].weight {
			return terms[i].weight > terms[j].weight
		}
		return terms[i].term < terms[j].term
	})
	if maxTerms > 0 && len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	var norm float64
	for _, t := range terms {
		norm += t.weight * t.weight
	}
	norm = math.Sqrt(norm)
	fp := make(Fingerprint, len(terms))
	for _, t := range terms {
		if norm > 0 {
			fp[t.term] = t.weight / norm
		}
	}
	return fp
}

// Cosine returns the cosine similarity of two fingerprints. Terms are visited in
// sorted order so Cosine(a, b) == Cosine(b, a) exactly.
func Cosine(a, b Fingerprint) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	var shared []string
	for term := range a {
		if _, ok := b[term]; ok {
			shared = append(shared, term)
		}
	}
	sort.Strings(shared)
	var dot float64
	for _, term := range shared {
		dot += a[term] * b[term]
	}
	return dot / (na * nb)
}

func norm(fp Fingerprint) float64 {
	keys := make([]string, 0, len(fp))
	for k := range fp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		sum += fp[k] * fp[k]
	}
	return math.Sqrt(sum)
}

func isNumeric(w string) bool {
	for _, r := range w {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return false
		}
	}
	return true
}

// #endregion fingerprint

// #region page-fingerprints
// PageFingerprints builds the whole-page fingerprint and one per non-empty section.
func PageFingerprints(role content.Role, page string, sections map[content.SectionKey]string, maxTerms, minLen int) []SectionFingerprint {
	out := []SectionFingerprint{{Role: role, Section: content.SectionUnknown, Vector: NewFingerprint(page, maxTerms, minLen)}}
	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		text := sections[content.SectionKey(k)]
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, SectionFingerprint{Role: role, Section: content.SectionKey(k), Vector: NewFingerprint(text, maxTerms, minLen)})
	}
	return out
}

// #endregion page-fingerprints
