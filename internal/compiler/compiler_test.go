package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/policy"
)

func newTestCompiler() *Compiler {
	return NewCompiler(policy.Default())
}

func paragraph(words int) string {
	return "<p>" + strings.TrimSpace(strings.Repeat("wear ", words)) + "</p>"
}

func sectionByKey(t *testing.T, res Result, key content.SectionKey) CompiledSection {
	t.Helper()
	for _, s := range res.Sections {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("section %s not compiled", key)
	return CompiledSection{}
}

func TestCompile_ForbiddenSectionIsStripped(t *testing.T) {
	res := newTestCompiler().Compile(Input{
		Role:      content.RoleRouter,
		ItemLabel: "Brake pads",
		Sections: []content.RawSection{
			{Key: content.SectionProcedure, HTML: "<p>Step 1: loosen the wheel nuts.</p>", Source: content.SourceRAG},
		},
	})

	sec := sectionByKey(t, res, content.SectionProcedure)
	assert.Equal(t, "", sec.Content)
	assert.True(t, sec.WasStripped)
	assert.Equal(t, policy.ModeForbidden, sec.Mode)
	assert.Contains(t, res.Log.Stripped, content.SectionProcedure)
	assert.True(t, res.Meta[content.SectionProcedure].WasStripped)
}

func TestCompile_SummaryNeverExceedsMaxWords(t *testing.T) {
	c := newTestCompiler()
	sp, _ := policy.Default().Policy(content.SectionIntro)
	maxWords := sp.MaxWords[content.RoleAdvice]

	res := c.Compile(Input{
		Role:      content.RoleAdvice,
		ItemLabel: "Brake pads",
		Sections: []content.RawSection{{
			Key:    content.SectionIntro,
			HTML:   strings.Repeat(paragraph(30), 5),
			Source: content.SourceDB,
		}},
	})
	sec := sectionByKey(t, res, content.SectionIntro)
	assert.Equal(t, policy.ModeSummary, sec.Mode)
	assert.True(t, sec.WasTruncated)
	assert.LessOrEqual(t, sec.WordCount, maxWords)
	assert.Equal(t, 60, sec.WordCount, "whole paragraphs only")
	assert.Equal(t, 2, strings.Count(sec.Content, "<p>"))
}

func TestCompile_SummaryCutsOversizeFirstBlock(t *testing.T) {
	res := newTestCompiler().Compile(Input{
		Role:     content.RoleAdvice,
		Sections: []content.RawSection{{Key: content.SectionIntro, HTML: paragraph(120), Source: content.SourceDB}},
	})
	sec := sectionByKey(t, res, content.SectionIntro)
	assert.True(t, sec.WasTruncated)
	assert.Equal(t, 80, sec.WordCount)
}

func TestCompile_SummaryCutsOversizeListAtWholeItems(t *testing.T) {
	item := "<li>" + strings.TrimSpace(strings.Repeat("wear ", 30)) + "</li>"
	res := newTestCompiler().Compile(Input{
		Role:     content.RoleAdvice,
		Sections: []content.RawSection{{Key: content.SectionIntro, HTML: "<ul>" + strings.Repeat(item, 5) + "</ul>", Source: content.SourceDB}},
	})
	sec := sectionByKey(t, res, content.SectionIntro)
	assert.True(t, sec.WasTruncated)
	assert.Equal(t, 60, sec.WordCount)
	assert.True(t, strings.HasPrefix(sec.Content, "<ul><li>"), sec.Content)
	assert.Equal(t, 2, strings.Count(sec.Content, "<li>"))
	assert.NotContains(t, sec.Content, "<p>")
}

func TestCompile_SummaryCutsListWithOversizeFirstItemByWords(t *testing.T) {
	item := "<li>" + strings.TrimSpace(strings.Repeat("wear ", 120)) + "</li>"
	res := newTestCompiler().Compile(Input{
		Role:     content.RoleAdvice,
		Sections: []content.RawSection{{Key: content.SectionIntro, HTML: "<ul>" + item + "</ul>", Source: content.SourceDB}},
	})
	sec := sectionByKey(t, res, content.SectionIntro)
	assert.True(t, sec.WasTruncated)
	assert.Equal(t, 80, sec.WordCount)
}

func TestCompile_FullModeSafetyNet(t *testing.T) {
	// router intro is full with 150 words, bounded at 180
	res := newTestCompiler().Compile(Input{
		Role:     content.RoleRouter,
		Sections: []content.RawSection{{Key: content.SectionIntro, HTML: strings.Repeat(paragraph(50), 4), Source: content.SourceDB}},
	})
	sec := sectionByKey(t, res, content.SectionIntro)
	assert.True(t, sec.WasTruncated)
	assert.Equal(t, 150, sec.WordCount)

	res = newTestCompiler().Compile(Input{
		Role:     content.RoleRouter,
		Sections: []content.RawSection{{Key: content.SectionIntro, HTML: strings.Repeat(paragraph(40), 4), Source: content.SourceDB}},
	})
	sec = sectionByKey(t, res, content.SectionIntro)
	assert.False(t, sec.WasTruncated, "160 words is within the full-mode slack")
}

func TestCompile_LinkOnlyIsStubOnly(t *testing.T) {
	original := "<p>A squealing noise when braking is the first symptom of worn pads.</p>"
	res := newTestCompiler().Compile(Input{
		Role:      content.RoleReference,
		ItemLabel: "Brake pads",
		Sections:  []content.RawSection{{Key: content.SectionSymptoms, HTML: original, Source: content.SourceRAG}},
	})
	sec := sectionByKey(t, res, content.SectionSymptoms)
	assert.Equal(t, policy.ModeLinkOnly, sec.Mode)
	assert.Contains(t, sec.Content, `href="/conseils/brake-pads#symptoms"`)
	assert.NotContains(t, sec.Content, "squealing")
	assert.Equal(t, content.SourceStatic, sec.Source)
	assert.Contains(t, res.Log.LinkStubs, content.SectionSymptoms)
}

func TestCompile_BlocksUnverifiedClaims(t *testing.T) {
	claims := []content.Claim{
		{Kind: content.ClaimMileage, RawText: "45 000 km", NormalizedValue: "45000", Unit: "km", SectionKey: content.SectionSymptoms, Status: content.ClaimUnverified},
		{Kind: content.ClaimDimension, RawText: "12 mm", NormalizedValue: "12", Unit: "mm", SectionKey: content.SectionSymptoms, Status: content.ClaimVerified},
		{Kind: content.ClaimMileage, RawText: "80 000 km", NormalizedValue: "80000", Unit: "km", SectionKey: content.SectionTiming, Status: content.ClaimUnverified},
	}
	res := newTestCompiler().Compile(Input{
		Role:   content.RoleAdvice,
		Claims: claims,
		Sections: []content.RawSection{{
			Key:    content.SectionSymptoms,
			HTML:   "<p>Pads often wear out around 45 000 km in city use. New pads are 12 mm thick.</p>",
			Source: content.SourceRAG,
		}},
	})

	sec := sectionByKey(t, res, content.SectionSymptoms)
	assert.NotContains(t, sec.Content, "45 000 km")
	assert.NotContains(t, sec.Content, "  ")
	assert.Contains(t, sec.Content, "12 mm")
	assert.Equal(t, []string{claims[0].ID()}, res.Log.BlockedClaims)
	assert.Equal(t, content.ClaimBlocked, res.Claims[0].Status)
	assert.Equal(t, content.ClaimUnverified, res.Claims[2].Status, "other sections untouched")
	assert.Equal(t, content.ClaimUnverified, claims[0].Status, "input is not mutated")
}

func TestCompile_FAQDropsOtherRolesIntents(t *testing.T) {
	faq := `<h3>What is the price of brake pads?</h3><p>Prices start at 20 euros.</p>` +
		`<h3>How do I replace brake pads?</h3><p>Lift the car and remove the wheel.</p>` +
		`<details class="faq-item"><summary>Can I order pads online?</summary><p>Yes.</p></details>`
	res := newTestCompiler().Compile(Input{
		Role:     content.RoleAdvice,
		Sections: []content.RawSection{{Key: content.SectionFAQ, HTML: faq, Source: content.SourceRAG}},
	})

	sec := sectionByKey(t, res, content.SectionFAQ)
	assert.NotContains(t, sec.Content, "price")
	assert.NotContains(t, sec.Content, "20 euros", "answer leaves with its question")
	assert.NotContains(t, sec.Content, "order pads")
	assert.Contains(t, sec.Content, "Lift the car")
	assert.Len(t, res.Log.FAQRemoved, 2)
}

func TestCompile_AIWithoutBriefFallsBack(t *testing.T) {
	res := newTestCompiler().Compile(Input{
		Role:      content.RoleRouter,
		ItemLabel: "Brake pads",
		Sections: []content.RawSection{
			{Key: content.SectionSelection, HTML: "<p>Generated buying advice.</p>", Source: content.SourceAI},
		},
	})
	sec := sectionByKey(t, res, content.SectionSelection)
	assert.Equal(t, content.SourceStatic, sec.Source)
	assert.Contains(t, sec.Content, "Brake pads")
	assert.NotContains(t, sec.Content, "Generated")
	assert.Contains(t, res.Log.Fallbacks, content.SectionSelection)

	res = newTestCompiler().Compile(Input{
		Role:           content.RoleRouter,
		HasActiveBrief: true,
		Sections: []content.RawSection{
			{Key: content.SectionSelection, HTML: "<p>Generated buying advice.</p>", Source: content.SourceAI},
		},
	})
	assert.Contains(t, sectionByKey(t, res, content.SectionSelection).Content, "Generated")
}

func TestCompile_UnknownSectionPassesThrough(t *testing.T) {
	raw := `<div class="x"><p>Kept   exactly.</p></div>`
	res := newTestCompiler().Compile(Input{
		Role:     content.RoleRouter,
		Sections: []content.RawSection{{Key: "warranty_terms", HTML: raw, Source: content.SourceDB}},
	})
	sec := sectionByKey(t, res, "warranty_terms")
	assert.Equal(t, raw, sec.Content)
	assert.Equal(t, policy.ModeFull, sec.Mode)
	assert.Equal(t, []content.SectionKey{"warranty_terms"}, res.Log.Passthrough)
}

func TestCompile_IsIdempotent(t *testing.T) {
	in := Input{
		Role:      content.RoleRouter,
		ItemLabel: "Brake pads",
		Claims: []content.Claim{
			{Kind: content.ClaimMileage, RawText: "30 000 km", SectionKey: content.SectionIntro, Status: content.ClaimUnverified},
		},
		Sections: []content.RawSection{
			{Key: content.SectionIntro, HTML: "<p>Pads are checked every 30 000 km.</p>" + strings.Repeat(paragraph(60), 4), Source: content.SourceDB},
			{Key: content.SectionProcedure, HTML: "<p>Step 1.</p>", Source: content.SourceRAG},
			{Key: content.SectionSymptoms, HTML: paragraph(90), Source: content.SourceRAG},
			{Key: content.SectionFAQ, HTML: "<h3>How do I replace pads?</h3><p>See the guide.</p>", Source: content.SourceRAG},
		},
	}
	c := newTestCompiler()
	first := c.Compile(in)
	second := c.Compile(in)
	require.Equal(t, first, second)
	assert.Equal(t, c.Assemble(first.Sections), c.Assemble(second.Sections))
}

func TestAssemble_RegistryOrderAndHeadings(t *testing.T) {
	c := newTestCompiler()
	page := c.Assemble([]CompiledSection{
		{Key: content.SectionFAQ, Title: "Frequently asked questions", Content: "<p>faq</p>"},
		{Key: "extra", Title: "Extra", Content: "<p>extra</p>"},
		{Key: content.SectionIntro, Title: "Overview", Content: "<p>intro</p>"},
		{Key: content.SectionProcedure, Title: "Replacement procedure", Content: ""},
	})
	assert.Equal(t, "<h2>Overview</h2>\n<p>intro</p>\n<h2>Frequently asked questions</h2>\n<p>faq</p>\n<h2>Extra</h2>\n<p>extra</p>", page)
}
