package compiler

import (
	"html"
	"math"
	"strings"

	"github.com/ak125/contentgate/internal/content"
	"github.com/ak125/contentgate/internal/policy"
	"github.com/ak125/contentgate/internal/textproc"
)

// fullModeSlack bounds full-mode sections at 120% of their word budget.
const fullModeSlack = 1.2

// #region compiler
// Compiler applies the section ownership policy to raw section content.
type Compiler struct {
	registry *policy.Registry
}

// NewCompiler creates a compiler over the given registry.
func NewCompiler(registry *policy.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Compile enforces modes, source admission, FAQ intent filtering and claim
// block-early on every section. It is pure: identical input yields identical output.
func (c *Compiler) Compile(in Input) Result {
	res := Result{
		Log:    CompilationLog{PolicyVersion: c.registry.Version},
		Meta:   make(map[content.SectionKey]SectionMeta, len(in.Sections)),
		Claims: make([]content.Claim, len(in.Claims)),
	}
	copy(res.Claims, in.Claims)

	for _, raw := range in.Sections {
		sec := c.compileSection(in, raw, &res)
		res.Sections = append(res.Sections, sec)
		res.Meta[sec.Key] = SectionMeta{
			WordCount:    sec.WordCount,
			Mode:         sec.Mode,
			WasTruncated: sec.WasTruncated,
			WasStripped:  sec.WasStripped,
			Source:       sec.Source,
		}
	}
	return res
}

func (c *Compiler) compileSection(in Input, raw content.RawSection, res *Result) CompiledSection {
	sp, ok := c.registry.Policy(raw.Key)
	if !ok {
		res.Log.Passthrough = append(res.Log.Passthrough, raw.Key)
		return finish(CompiledSection{
			Key:     raw.Key,
			Title:   fallbackTitle(raw.Key),
			Content: raw.HTML,
			Mode:    policy.ModeFull,
			Source:  raw.Source,
		})
	}

	sec := CompiledSection{Key: raw.Key, Title: sp.Title, Mode: sp.ModeFor(in.Role), Source: raw.Source}
	switch sec.Mode {
	case policy.ModeForbidden:
		sec.WasStripped = true
		res.Log.Stripped = append(res.Log.Stripped, raw.Key)
		return finish(sec)
	case policy.ModeLinkOnly:
		sec.Content = c.linkStub(sp, in.ItemLabel)
		sec.Source = content.SourceStatic
		res.Log.LinkStubs = append(res.Log.LinkStubs, raw.Key)
		return finish(sec)
	}

	body := raw.HTML
	if strings.TrimSpace(body) != "" && !sp.Admits(raw.Source, in.HasActiveBrief) {
		body, sec.Source = applyFallback(sp, in.ItemLabel)
		res.Log.Fallbacks = append(res.Log.Fallbacks, raw.Key)
	}
	if strings.TrimSpace(body) == "" {
		return finish(sec)
	}

	blocks := textproc.Parse(body).Blocks()
	if raw.Key == content.SectionFAQ {
		var removed []string
		blocks, removed = filterFAQ(blocks, otherIntents(sp, in.Role))
		res.Log.FAQRemoved = append(res.Log.FAQRemoved, removed...)
	}

	limit := sp.MaxWords[in.Role]
	if sec.Mode == policy.ModeFull {
		limit = int(math.Floor(float64(limit) * fullModeSlack))
	}
	blocks, sec.WasTruncated = truncate(blocks, limit, sec.Mode == policy.ModeSummary)
	if sec.WasTruncated {
		res.Log.Truncated = append(res.Log.Truncated, raw.Key)
	}
	sec.Content = textproc.RenderBlocks(blocks)

	sec.Content = blockClaims(sec.Content, raw.Key, res)
	return finish(sec)
}

// #endregion compiler

// #region assemble
// Assemble renders compiled sections into one page: an h2 title followed by the
// section body, registry order first, unknown sections after in input order.
func (c *Compiler) Assemble(sections []CompiledSection) string {
	byKey := make(map[content.SectionKey]CompiledSection, len(sections))
	for _, s := range sections {
		byKey[s.Key] = s
	}

	var parts []string
	emit := func(s CompiledSection) {
		if strings.TrimSpace(s.Content) == "" {
			return
		}
		parts = append(parts, "<h2>"+html.EscapeString(s.Title)+"</h2>\n"+s.Content)
	}
	for _, key := range c.registry.Sections() {
		if s, ok := byKey[key]; ok {
			emit(s)
		}
	}
	for _, s := range sections {
		if _, ok := c.registry.Policy(s.Key); !ok {
			emit(s)
		}
	}
	return strings.Join(parts, "\n")
}

// #endregion assemble

// #region helpers
func finish(sec CompiledSection) CompiledSection {
	if strings.TrimSpace(sec.Content) == "" {
		sec.Content = ""
		sec.Source = content.SourceEmpty
		return sec
	}
	sec.WordCount = textproc.Parse(sec.Content).Words()
	return sec
}

// linkStub points at the owning role's page; it never carries the section text.
func (c *Compiler) linkStub(sp policy.SectionPolicy, itemLabel string) string {
	owner := c.registry.Role(sp.Owner)
	href := owner.Path + "/" + textproc.Slug(itemLabel) + "#" + string(sp.Key)
	return `<p class="section-link"><a href="` + html.EscapeString(href) + `">` +
		html.EscapeString(sp.Title) + `: ` + html.EscapeString(itemLabel) + `</a></p>`
}

func applyFallback(sp policy.SectionPolicy, itemLabel string) (string, content.SourceType) {
	if sp.Fallback == policy.FallbackStaticTemplate && sp.StaticTemplate != "" {
		return strings.ReplaceAll(sp.StaticTemplate, "{item}", html.EscapeString(itemLabel)), content.SourceStatic
	}
	// rag_only keeps the section empty until retrieval supplies admissible text.
	return "", content.SourceEmpty
}

// truncate keeps whole blocks while the running word count stays within limit.
// At least one block is kept; in strict mode an oversize first block is cut after
// its last whole list item, or else at a word boundary, so the output never exceeds limit.
func truncate(blocks []textproc.Block, limit int, strict bool) ([]textproc.Block, bool) {
	if len(blocks) == 0 || limit <= 0 {
		return blocks, false
	}
	total := 0
	for i, b := range blocks {
		if total+b.Words > limit {
			if i == 0 {
				if !strict {
					return blocks[:1], len(blocks) > 1
				}
				return []textproc.Block{cutBlock(b, limit)}, true
			}
			return blocks[:i], true
		}
		total += b.Words
	}
	return blocks, false
}

func cutBlock(b textproc.Block, limit int) textproc.Block {
	if list, ok := cutList(b, limit); ok {
		return list
	}
	words := strings.Fields(b.Text)
	if len(words) > limit {
		words = words[:limit]
	}
	text := strings.Join(words, " ")
	return textproc.Block{Tag: "p", HTML: "<p>" + html.EscapeString(text) + "</p>", Text: text, Words: len(words)}
}

// cutList keeps the leading whole items of a list block that fit within limit.
// It reports false when the block is not a list or its first item alone is oversize.
func cutList(b textproc.Block, limit int) (textproc.Block, bool) {
	items := b.Items()
	if len(items) == 0 || items[0].Words > limit {
		return textproc.Block{}, false
	}
	var (
		parts []string
		lines []string
		total int
	)
	for _, it := range items {
		if total+it.Words > limit {
			break
		}
		parts = append(parts, it.HTML)
		lines = append(lines, it.Text)
		total += it.Words
	}
	return textproc.Block{
		Tag:   b.Tag,
		HTML:  "<" + b.Tag + ">" + strings.Join(parts, "") + "</" + b.Tag + ">",
		Text:  strings.Join(lines, "\n"),
		Words: total,
	}, true
}

// blockClaims erases every unverified claim of the section still present in body.
func blockClaims(body string, key content.SectionKey, res *Result) string {
	for i, cl := range res.Claims {
		if cl.Status != content.ClaimUnverified || cl.SectionKey != key || cl.RawText == "" {
			continue
		}
		if !strings.Contains(body, cl.RawText) {
			continue
		}
		body = textproc.CollapseSpaces(strings.ReplaceAll(body, cl.RawText, ""))
		res.Claims[i].Status = content.ClaimBlocked
		res.Log.BlockedClaims = append(res.Log.BlockedClaims, cl.ID())
	}
	return body
}

func fallbackTitle(key content.SectionKey) string {
	t := strings.ReplaceAll(string(key), "_", " ")
	if t == "" {
		return ""
	}
	return strings.ToUpper(t[:1]) + t[1:]
}

// #endregion helpers
