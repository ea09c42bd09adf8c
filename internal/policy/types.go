package policy

import (
	"regexp"

	"github.com/ak125/contentgate/internal/content"
)

// #region mode
// Mode is how a role may render a section it does not necessarily own.
type Mode string

const (
	ModeFull      Mode = "full"
	ModeSummary   Mode = "summary"
	ModeLinkOnly  Mode = "link_only"
	ModeForbidden Mode = "forbidden"
)

func (m Mode) valid() bool {
	switch m {
	case ModeFull, ModeSummary, ModeLinkOnly, ModeForbidden:
		return true
	}
	return false
}

// #endregion mode

// #region fallback
// Fallback is what replaces a section whose source is not admitted.
type Fallback string

const (
	FallbackEmpty          Fallback = "empty"
	FallbackStaticTemplate Fallback = "static_template"
	FallbackRAGOnly        Fallback = "rag_only"
)

func (f Fallback) valid() bool {
	switch f {
	case FallbackEmpty, FallbackStaticTemplate, FallbackRAGOnly:
		return true
	}
	return false
}

// #endregion fallback

// #region section-policy
// SectionPolicy is the ownership rule for one section key.
type SectionPolicy struct {
	Key              content.SectionKey
	Title            string
	Owner            content.Role
	AllowedSources   []content.SourceType // ordered by preference
	AIAllowed        bool
	AIRequiresBrief  bool
	EvidenceRequired bool
	MaxWords         map[content.Role]int
	Modes            map[content.Role]Mode
	Fallback         Fallback
	StaticTemplate   string

	faqIntents map[content.Role][]*regexp.Regexp
	signatures []*regexp.Regexp
}

// ModeFor returns the mode for role; unknown roles get full.
func (p SectionPolicy) ModeFor(role content.Role) Mode {
	if m, ok := p.Modes[role]; ok {
		return m
	}
	return ModeFull
}

// Admits reports whether text from src may be used for this section.
func (p SectionPolicy) Admits(src content.SourceType, hasActiveBrief bool) bool {
	if src == content.SourceAI {
		if !p.AIAllowed || (p.AIRequiresBrief && !hasActiveBrief) {
			return false
		}
	}
	if len(p.AllowedSources) == 0 {
		return true
	}
	for _, s := range p.AllowedSources {
		if s == src {
			return true
		}
	}
	return false
}

// FAQIntents returns the intent patterns owned by role.
func (p SectionPolicy) FAQIntents(role content.Role) []*regexp.Regexp {
	return p.faqIntents[role]
}

// Signatures returns the characteristic phrasing patterns of this section.
func (p SectionPolicy) Signatures() []*regexp.Regexp {
	return p.signatures
}

// #endregion section-policy

// #region role-info
// RoleInfo carries per-role page settings.
type RoleInfo struct {
	Path     string // URL prefix of the role's pages
	MaxWords int    // plain-word ceiling for a whole page
}

// #endregion role-info
