package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ak125/contentgate/internal/content"
)

func TestDefault_EveryRoleHasOneModePerSection(t *testing.T) {
	reg := Default()
	require.NotEmpty(t, reg.Version)

	for _, key := range reg.Sections() {
		sp, ok := reg.Policy(key)
		require.True(t, ok, key)
		assert.Len(t, sp.Modes, len(content.Roles), key)
		for _, role := range content.Roles {
			mode := sp.ModeFor(role)
			assert.True(t, mode.valid(), "%s/%s", key, role)
			if mode == ModeForbidden {
				assert.Zero(t, sp.MaxWords[role], "%s/%s forbidden must have max_words 0", key, role)
			}
		}
	}
}

func TestDefault_SectionOrderMatchesPage(t *testing.T) {
	assert.Equal(t, content.SectionKeys, Default().Sections())
}

func TestRegistry_UnknownSectionIsPassthrough(t *testing.T) {
	reg := Default()
	_, ok := reg.Policy("warranty_terms")
	assert.False(t, ok)
	assert.Equal(t, ModeFull, reg.Mode("warranty_terms", content.RoleAdvice))
}

func TestRegistry_ForbiddenFor(t *testing.T) {
	var keys []content.SectionKey
	for _, sp := range Default().ForbiddenFor(content.RoleRouter) {
		keys = append(keys, sp.Key)
	}
	assert.Equal(t, []content.SectionKey{content.SectionProcedure}, keys)
}

func TestSectionPolicy_Admits(t *testing.T) {
	reg := Default()

	sel, _ := reg.Policy(content.SectionSelection)
	assert.True(t, sel.Admits(content.SourceDB, false))
	assert.False(t, sel.Admits(content.SourceAI, false), "ai needs an active brief here")
	assert.True(t, sel.Admits(content.SourceAI, true))

	proc, _ := reg.Policy(content.SectionProcedure)
	assert.False(t, proc.Admits(content.SourceAI, true))
	assert.False(t, proc.Admits(content.SourceDB, true))
	assert.True(t, proc.Admits(content.SourceRAG, false))
}

func TestLoad_RejectsForbiddenWithWords(t *testing.T) {
	doc := []byte(`
version: "t1"
roles:
  router: {path: /p, max_words: 100}
  advice: {path: /a, max_words: 100}
  reference: {path: /r, max_words: 100}
sections:
  - key: intro
    owner: router
    fallback: empty
    modes: {router: full, advice: forbidden, reference: summary}
    max_words: {router: 50, advice: 20, reference: 20}
`)
	_, err := Load(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestLoad_RejectsMissingMode(t *testing.T) {
	doc := []byte(`
version: "t1"
roles:
  router: {path: /p, max_words: 100}
  advice: {path: /a, max_words: 100}
  reference: {path: /r, max_words: 100}
sections:
  - key: intro
    owner: router
    fallback: empty
    modes: {router: full, advice: summary}
    max_words: {router: 50, advice: 20}
`)
	_, err := Load(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference")
}

func TestLoad_RejectsUnknownSection(t *testing.T) {
	doc := []byte(`
version: "t1"
roles:
  router: {path: /p, max_words: 100}
  advice: {path: /a, max_words: 100}
  reference: {path: /r, max_words: 100}
sections:
  - key: pricing_table
    owner: router
    fallback: empty
    modes: {router: full, advice: full, reference: full}
    max_words: {router: 50, advice: 50, reference: 50}
`)
	_, err := Load(doc)
	require.Error(t, err)
}

func TestFAQIntents_PerRole(t *testing.T) {
	faq, ok := Default().Policy(content.SectionFAQ)
	require.True(t, ok)

	matches := func(role content.Role, q string) bool {
		for _, re := range faq.FAQIntents(role) {
			if re.MatchString(q) {
				return true
			}
		}
		return false
	}
	assert.True(t, matches(content.RoleRouter, "what is the price of brake pads?"))
	assert.True(t, matches(content.RoleAdvice, "how do i replace brake pads?"))
	assert.True(t, matches(content.RoleReference, "what is a caliper?"))
	assert.False(t, matches(content.RoleReference, "how do i replace brake pads?"))
}

func TestDefaultPatterns_Budgets(t *testing.T) {
	p := DefaultPatterns()

	b, ok := p.Budget(content.RoleAdvice, content.RoleRouter)
	require.True(t, ok, "budget lookup is order independent")
	intro, overridden := b.SectionThreshold(content.SectionIntro)
	assert.True(t, overridden)
	faq, _ := b.SectionThreshold(content.SectionFAQ)
	assert.Greater(t, intro.Fail, faq.Fail)

	ref, ok := p.Budget(content.RoleRouter, content.RoleReference)
	require.True(t, ok)
	assert.Empty(t, ref.Sections)
	got, overridden := ref.SectionThreshold(content.SectionIntro)
	assert.False(t, overridden)
	assert.Equal(t, ref.Global, got)
}

func TestDefaultPatterns_Classifiers(t *testing.T) {
	p := DefaultPatterns()
	assert.True(t, p.IsMarketing("free delivery within 48 hours"))
	assert.False(t, p.IsMarketing("replace the pads every 30000 km"))
	assert.True(t, p.HasCTA("see our guide to brake discs"))
	assert.True(t, p.ProceduralVerbs.MatchString("remove the caliper"))

	page, ok := p.FallbackPage(content.RoleAdvice, "Brake pads")
	require.True(t, ok)
	assert.Contains(t, page, "Brake pads")
	assert.NotContains(t, page, "{item}")
}

func TestLoadPatterns_RejectsBadRegex(t *testing.T) {
	_, err := LoadPatterns([]byte("procedural_verbs: 'remov\\w*'\nmarketing: ['(unclosed']\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marketing")
}
