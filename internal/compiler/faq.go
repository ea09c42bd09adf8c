package compiler

import (
	"regexp"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/textproc"
)

// otherIntents collects the FAQ intent patterns of every role except role.
func otherIntents(sp policy.SectionPolicy, role content.Role) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, r := range content.Roles {
		if r != role {
			out = append(out, sp.FAQIntents(r)...)
		}
	}
	return out
}

// qaUnit is one question with its answer: either a self-contained block
// (details, .faq-item, dl) or a question heading plus the blocks that follow it.
type qaUnit struct {
	question string
	blocks   []textproc.Block
}

func groupQA(blocks []textproc.Block) []qaUnit {
	var units []qaUnit
	open := false
	for _, b := range blocks {
		q := b.Question()
		switch {
		case q != "" && isQuestionHeading(b):
			units = append(units, qaUnit{question: q, blocks: []textproc.Block{b}})
			open = true
		case q != "":
			units = append(units, qaUnit{question: q, blocks: []textproc.Block{b}})
			open = false
		case open:
			last := &units[len(units)-1]
			last.blocks = append(last.blocks, b)
		default:
			units = append(units, qaUnit{blocks: []textproc.Block{b}})
		}
	}
	return units
}

func isQuestionHeading(b textproc.Block) bool {
	return b.Tag == "h3" || b.Tag == "h4" || b.Tag == "dt"
}

// filterFAQ drops whole Q/A units whose question matches another role's intent.
func filterFAQ(blocks []textproc.Block, foreign []*regexp.Regexp) ([]textproc.Block, []string) {
	if len(foreign) == 0 {
		return blocks, nil
	}
	var kept []textproc.Block
	var removed []string
	for _, u := range groupQA(blocks) {
		if u.question != "" && matchesAny(textproc.Fold(u.question), foreign) {
			removed = append(removed, u.question)
			continue
		}
		kept = append(kept, u.blocks...)
	}
	return kept, removed
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
