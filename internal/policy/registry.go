package policy

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ak125/contentgate/internal/content"
)

//go:embed data/registry.yaml
var defaultRegistryYAML []byte

// #region raw-schema
type rawRegistry struct {
	Version  string             `yaml:"version"`
	Roles    map[string]rawRole `yaml:"roles"`
	Sections []rawSection       `yaml:"sections"`
}

type rawRole struct {
	Path     string `yaml:"path"`
	MaxWords int    `yaml:"max_words"`
}

type rawSection struct {
	Key              string              `yaml:"key"`
	Title            string              `yaml:"title"`
	Owner            string              `yaml:"owner"`
	AllowedSources   []string            `yaml:"allowed_sources"`
	AIAllowed        bool                `yaml:"ai_allowed"`
	AIRequiresBrief  bool                `yaml:"ai_requires_brief"`
	EvidenceRequired bool                `yaml:"evidence_required"`
	Fallback         string              `yaml:"fallback"`
	StaticTemplate   string              `yaml:"static_template"`
	Modes            map[string]string   `yaml:"modes"`
	MaxWords         map[string]int      `yaml:"max_words"`
	Signatures       []string            `yaml:"signatures"`
	FAQIntents       map[string][]string `yaml:"faq_intents"`
}

// #endregion raw-schema

// #region registry
// Registry is the versioned, read-only section×role ownership table.
type Registry struct {
	Version  string
	roles    map[content.Role]RoleInfo
	sections map[content.SectionKey]SectionPolicy
	order    []content.SectionKey
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the embedded registry, parsed once per process.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = Load(defaultRegistryYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded policy registry: %v", defaultErr))
	}
	return defaultRegistry
}

// Load parses and validates a registry document.
func Load(data []byte) (*Registry, error) {
	var raw rawRegistry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if raw.Version == "" {
		return nil, fmt.Errorf("registry has no version")
	}

	reg := &Registry{
		Version:  raw.Version,
		roles:    make(map[content.Role]RoleInfo),
		sections: make(map[content.SectionKey]SectionPolicy),
	}
	for _, role := range content.Roles {
		info, ok := raw.Roles[string(role)]
		if !ok {
			return nil, fmt.Errorf("role %q missing from registry", role)
		}
		reg.roles[role] = RoleInfo{Path: info.Path, MaxWords: info.MaxWords}
	}

	for _, rs := range raw.Sections {
		sp, err := buildSection(rs)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", rs.Key, err)
		}
		if _, dup := reg.sections[sp.Key]; dup {
			return nil, fmt.Errorf("section %q declared twice", sp.Key)
		}
		reg.sections[sp.Key] = sp
		reg.order = append(reg.order, sp.Key)
	}
	return reg, nil
}

// #endregion registry

// #region lookups
// Policy returns the policy for key; ok is false for sections with no policy (passthrough).
func (r *Registry) Policy(key content.SectionKey) (SectionPolicy, bool) {
	sp, ok := r.sections[key]
	return sp, ok
}

// Mode returns the mode role must apply to key. Sections with no policy are full.
func (r *Registry) Mode(key content.SectionKey, role content.Role) Mode {
	sp, ok := r.sections[key]
	if !ok {
		return ModeFull
	}
	return sp.ModeFor(role)
}

// Role returns page settings for role.
func (r *Registry) Role(role content.Role) RoleInfo {
	return r.roles[role]
}

// Sections returns section keys in page order.
func (r *Registry) Sections() []content.SectionKey {
	out := make([]content.SectionKey, len(r.order))
	copy(out, r.order)
	return out
}

// ForbiddenFor returns the policies of sections role must never render.
func (r *Registry) ForbiddenFor(role content.Role) []SectionPolicy {
	var out []SectionPolicy
	for _, key := range r.order {
		if sp := r.sections[key]; sp.ModeFor(role) == ModeForbidden {
			out = append(out, sp)
		}
	}
	return out
}

// #endregion lookups

// #region validation
func buildSection(rs rawSection) (SectionPolicy, error) {
	sp := SectionPolicy{
		Key:              content.SectionKey(rs.Key),
		Title:            rs.Title,
		Owner:            content.Role(rs.Owner),
		AIAllowed:        rs.AIAllowed,
		AIRequiresBrief:  rs.AIRequiresBrief,
		EvidenceRequired: rs.EvidenceRequired,
		Fallback:         Fallback(rs.Fallback),
		StaticTemplate:   rs.StaticTemplate,
		MaxWords:         make(map[content.Role]int),
		Modes:            make(map[content.Role]Mode),
		faqIntents:       make(map[content.Role][]*regexp.Regexp),
	}
	if !sp.Key.Known() {
		return sp, fmt.Errorf("unknown section key")
	}
	if !sp.Owner.Valid() {
		return sp, fmt.Errorf("unknown owner role %q", rs.Owner)
	}
	if !sp.Fallback.valid() {
		return sp, fmt.Errorf("unknown fallback %q", rs.Fallback)
	}
	for _, s := range rs.AllowedSources {
		sp.AllowedSources = append(sp.AllowedSources, content.SourceType(s))
	}

	for name := range rs.Modes {
		if !content.Role(name).Valid() {
			return sp, fmt.Errorf("mode declared for unknown role %q", name)
		}
	}
	for _, role := range content.Roles {
		mode := Mode(rs.Modes[string(role)])
		if !mode.valid() {
			return sp, fmt.Errorf("role %q has no valid mode", role)
		}
		words := rs.MaxWords[string(role)]
		if mode == ModeForbidden && words != 0 {
			return sp, fmt.Errorf("role %q is forbidden but max_words=%d", role, words)
		}
		if (mode == ModeFull || mode == ModeSummary) && words <= 0 {
			return sp, fmt.Errorf("role %q mode %s needs max_words > 0", role, mode)
		}
		sp.Modes[role] = mode
		sp.MaxWords[role] = words
	}

	sigs, err := compileAll(rs.Signatures)
	if err != nil {
		return sp, err
	}
	sp.signatures = sigs
	for name, patterns := range rs.FAQIntents {
		role := content.Role(name)
		if !role.Valid() {
			return sp, fmt.Errorf("faq intents for unknown role %q", name)
		}
		compiled, err := compileAll(patterns)
		if err != nil {
			return sp, err
		}
		sp.faqIntents[role] = compiled
	}
	return sp, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// #endregion validation
