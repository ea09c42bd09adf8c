package textproc

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// #region fold
// Fold lowercases s and strips combining marks so "Démontage" and "demontage" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// CollapseSpaces squeezes runs of spaces left behind by span removal.
func CollapseSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

// TidyPunctuation removes the space a deleted span leaves before "." or ",".
func TidyPunctuation(s string) string {
	s = CollapseSpaces(s)
	s = strings.ReplaceAll(s, " .", ".")
	return strings.ReplaceAll(s, " ,", ",")
}

// Slug turns a label into a URL path segment.
func Slug(label string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range Fold(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// #endregion fold
