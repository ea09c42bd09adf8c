package gate

import (
	"strings"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/textproc"
)

// AllowList is the set of folded terms the no-guess gate accepts as known.
type AllowList map[string]bool

// BuildAllowList collects terms from the item's own label and description, the
// evidence pack, and any domain lexicons. It is rebuilt per job.
func BuildAllowList(item content.Item, evidence []content.EvidenceEntry, lexicons ...[]string) AllowList {
	allow := make(AllowList)
	add := func(text string) {
		for _, w := range textproc.Words(text) {
			w = strings.Trim(w, "-")
			if w == "" {
				continue
			}
			allow[w] = true
			for _, part := range strings.Split(w, "-") {
				if part != "" {
					allow[part] = true
				}
			}
		}
	}
	add(item.Label)
	add(item.Description)
	for _, e := range evidence {
		add(e.Heading)
		add(e.Excerpt)
	}
	for _, lex := range lexicons {
		for _, term := range lex {
			add(term)
		}
	}
	return allow
}

// Contains reports whether term is known. Hyphenated terms are known when every part is.
func (a AllowList) Contains(term string) bool {
	if a[term] {
		return true
	}
	if !strings.Contains(term, "-") {
		return false
	}
	for _, part := range strings.Split(term, "-") {
		if part != "" && !a[part] {
			return false
		}
	}
	return true
}
