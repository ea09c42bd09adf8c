package policy

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ak125/contentgate/internal/content"
)

//go:embed data/patterns.yaml
var defaultPatternsYAML []byte

// #region threshold
// Threshold is a (warn, fail) pair for a similarity budget.
type Threshold struct {
	Warn float64 `yaml:"warn"`
	Fail float64 `yaml:"fail"`
}

// PairBudget is the similarity budget between two roles. An empty Sections map
// means the global threshold applies to every section.
type PairBudget struct {
	A, B     content.Role
	Global   Threshold
	Sections map[content.SectionKey]Threshold
}

// SectionThreshold returns the section override, or the global threshold.
func (b PairBudget) SectionThreshold(key content.SectionKey) (Threshold, bool) {
	t, ok := b.Sections[key]
	if !ok {
		return b.Global, false
	}
	return t, true
}

// #endregion threshold

// #region patterns
// Patterns holds the text classification tables used by the gates.
type Patterns struct {
	Marketing       []*regexp.Regexp
	ProceduralVerbs *regexp.Regexp
	CTA             []*regexp.Regexp
	RoleLanguage    map[content.Role][]*regexp.Regexp
	Lexicon         []string
	Similarity      []PairBudget
	fallbacks       map[content.Role]string
}

type rawPatterns struct {
	Marketing       []string            `yaml:"marketing"`
	ProceduralVerbs string              `yaml:"procedural_verbs"`
	CTA             []string            `yaml:"cta"`
	RoleLanguage    map[string][]string `yaml:"role_language"`
	Lexicon         []string            `yaml:"lexicon"`
	Similarity      []struct {
		Roles    []string             `yaml:"roles"`
		Warn     float64              `yaml:"warn"`
		Fail     float64              `yaml:"fail"`
		Sections map[string]Threshold `yaml:"sections"`
	} `yaml:"similarity"`
	FallbackTemplates map[string]string `yaml:"fallback_templates"`
}

var (
	patternsOnce sync.Once
	defaultPats  *Patterns
	patternsErr  error
)

// DefaultPatterns returns the embedded pattern tables, parsed once per process.
func DefaultPatterns() *Patterns {
	patternsOnce.Do(func() {
		defaultPats, patternsErr = LoadPatterns(defaultPatternsYAML)
	})
	if patternsErr != nil {
		panic(fmt.Sprintf("embedded pattern tables: %v", patternsErr))
	}
	return defaultPats
}

// LoadPatterns parses and compiles a pattern document.
func LoadPatterns(data []byte) (*Patterns, error) {
	var raw rawPatterns
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse patterns: %w", err)
	}

	p := &Patterns{
		RoleLanguage: make(map[content.Role][]*regexp.Regexp),
		Lexicon:      raw.Lexicon,
		fallbacks:    make(map[content.Role]string),
	}
	var err error
	if p.Marketing, err = compileAll(raw.Marketing); err != nil {
		return nil, fmt.Errorf("marketing: %w", err)
	}
	if p.CTA, err = compileAll(raw.CTA); err != nil {
		return nil, fmt.Errorf("cta: %w", err)
	}
	if raw.ProceduralVerbs == "" {
		return nil, fmt.Errorf("procedural_verbs is required")
	}
	if p.ProceduralVerbs, err = regexp.Compile(raw.ProceduralVerbs); err != nil {
		return nil, fmt.Errorf("procedural_verbs: %w", err)
	}
	for name, patterns := range raw.RoleLanguage {
		role := content.Role(name)
		if !role.Valid() {
			return nil, fmt.Errorf("role_language: unknown role %q", name)
		}
		if p.RoleLanguage[role], err = compileAll(patterns); err != nil {
			return nil, fmt.Errorf("role_language %s: %w", name, err)
		}
	}

	for _, s := range raw.Similarity {
		if len(s.Roles) != 2 {
			return nil, fmt.Errorf("similarity budget needs exactly two roles, got %v", s.Roles)
		}
		b := PairBudget{
			A:        content.Role(s.Roles[0]),
			B:        content.Role(s.Roles[1]),
			Global:   Threshold{Warn: s.Warn, Fail: s.Fail},
			Sections: make(map[content.SectionKey]Threshold),
		}
		if !b.A.Valid() || !b.B.Valid() {
			return nil, fmt.Errorf("similarity budget has unknown role in %v", s.Roles)
		}
		if b.Global.Warn > b.Global.Fail {
			return nil, fmt.Errorf("similarity budget %v: warn above fail", s.Roles)
		}
		for key, t := range s.Sections {
			b.Sections[content.SectionKey(key)] = t
		}
		p.Similarity = append(p.Similarity, b)
	}

	for name, tpl := range raw.FallbackTemplates {
		p.fallbacks[content.Role(name)] = tpl
	}
	return p, nil
}

// #endregion patterns

// #region lookups
// Budget returns the similarity budget for a role pair, in either order.
func (p *Patterns) Budget(a, b content.Role) (PairBudget, bool) {
	for _, budget := range p.Similarity {
		if (budget.A == a && budget.B == b) || (budget.A == b && budget.B == a) {
			return budget, true
		}
	}
	return PairBudget{}, false
}

// IsMarketing reports whether a folded sentence is commercial boilerplate.
func (p *Patterns) IsMarketing(folded string) bool {
	for _, re := range p.Marketing {
		if re.MatchString(folded) {
			return true
		}
	}
	return false
}

// HasCTA reports whether a folded sentence carries an explicit call to action.
func (p *Patterns) HasCTA(folded string) bool {
	for _, re := range p.CTA {
		if re.MatchString(folded) {
			return true
		}
	}
	return false
}

// FallbackPage renders the role's safe fallback page for an item.
func (p *Patterns) FallbackPage(role content.Role, itemLabel string) (string, bool) {
	tpl, ok := p.fallbacks[role]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(tpl, "{item}", itemLabel), true
}

// #endregion lookups
