package textproc

import (
	"regexp"
	"strconv"
	"strings"
)

// #region vocabulary
const numberPattern = `(?:\d{1,3}(?:[ \x{00A0}\x{202F}.]\d{3})+|\d+)(?:[.,]\d+)?`

var numericClaimRe = regexp.MustCompile(
	`(?i)(` + numberPattern + `(?:\s*(?:-|–|—|to|à)\s*` + numberPattern + `)?)` +
		`[ \x{00A0}\x{202F}]?` +
		`(mm|cm|km|nm|bars?|°\s?c|years?|ans?|%|€|euros?|eur|\$|usd|litres?|liters?|l|kg|db|hp|ch|cv)` +
		`(?:[^\p{L}\p{N}]|$)`,
)

var rangeSepRe = regexp.MustCompile(`(?i)\s*(?:-|–|—|to|à)\s*`)

// canonicalUnits maps every spelling in the vocabulary to one canonical unit.
var canonicalUnits = map[string]string{
	"mm": "mm", "cm": "cm", "km": "km", "nm": "nm",
	"bar": "bar", "bars": "bar",
	"°c": "°c", "° c": "°c",
	"year": "years", "years": "years", "an": "years", "ans": "years",
	"%": "%",
	"€": "eur", "euro": "eur", "euros": "eur", "eur": "eur", "$": "usd", "usd": "usd",
	"l": "l", "litre": "l", "litres": "l", "liter": "l", "liters": "l",
	"kg": "kg", "db": "db",
	"hp": "hp", "ch": "hp", "cv": "hp",
}

// unitWords are spelled-out units excluded from significant-term sets.
var unitWords = map[string]bool{
	"year": true, "years": true, "annees": true, "euro": true, "euros": true,
	"litre": true, "litres": true, "liter": true, "liters": true, "bars": true,
}

// #endregion vocabulary

// #region numeric-claim
// NumericClaim is a number (or range) followed by a unit from the fixed vocabulary.
type NumericClaim struct {
	Raw   string  // exact span in the source text
	Token string  // normalized "<value>[-<value>] <unit>" used for evidence matching
	Unit  string  // canonical unit
	Value float64 // lower bound
	Upper float64 // upper bound, equal to Value for single numbers
	Start int     // byte offset of Raw in the source text
	End   int
}

// ExtractNumericClaims finds every numeric-with-unit span in text.
func ExtractNumericClaims(text string) []NumericClaim {
	var claims []NumericClaim
	for pos := 0; pos < len(text); {
		m := numericClaimRe.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		for i := range m {
			if m[i] >= 0 {
				m[i] += pos
			}
		}
		numStart, numEnd := m[2], m[3]
		unitStart, unitEnd := m[4], m[5]
		pos = m[1]
		if numStart > 0 && isDigitByte(text[numStart-1]) {
			// started inside a longer number, e.g. "2019 150 km"
			pos = numStart + 1
			continue
		}
		if numStart > 0 && isWordByte(text[numStart-1]) {
			continue // digits glued to a word, e.g. "R90"
		}

		unit := canonicalUnits[strings.ToLower(text[unitStart:unitEnd])]
		if unit == "" {
			continue
		}
		lo, hi := splitRange(text[numStart:numEnd])
		loVal, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			continue
		}
		hiVal := loVal
		token := lo
		if hi != "" {
			if v, err := strconv.ParseFloat(hi, 64); err == nil {
				hiVal = v
				token = lo + "-" + hi
			}
		}

		claims = append(claims, NumericClaim{
			Raw:   text[numStart:unitEnd],
			Token: token + " " + unit,
			Unit:  unit,
			Value: loVal,
			Upper: hiVal,
			Start: numStart,
			End:   unitEnd,
		})
	}
	return claims
}

// NumericTokens returns the set of normalized claim tokens found in text.
func NumericTokens(text string) map[string]bool {
	set := make(map[string]bool)
	for _, c := range ExtractNumericClaims(text) {
		set[c.Token] = true
	}
	return set
}

// #endregion numeric-claim

// #region helpers
func splitRange(s string) (string, string) {
	loc := rangeSepRe.FindStringIndex(s)
	// a leading separator is a sign or noise, not a range
	if loc == nil || loc[0] == 0 {
		return normalizeNumber(s), ""
	}
	return normalizeNumber(s[:loc[0]]), normalizeNumber(s[loc[1]:])
}

// normalizeNumber removes thousands separators and turns a decimal comma into a dot.
func normalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if isDottedThousands(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	return strings.ReplaceAll(s, ",", ".")
}

// isDottedThousands reports "30.000"-style grouping: every dot is followed by exactly three digits.
func isDottedThousands(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

// #endregion helpers
