package textproc

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// #region block
// Block is one top-level HTML element (or bare text run) of a section.
type Block struct {
	Tag   string // element name, "#text" for bare text
	HTML  string // outer HTML, rendered as parsed
	Text  string // plain text, one line per block-level descendant
	Words int
	sel   *goquery.Selection
}

// Question returns the question text of a Q/A block, or "" when the block is not one.
func (b Block) Question() string {
	switch b.Tag {
	case "h3", "h4", "dt":
		return b.Text
	}
	if b.sel == nil {
		return ""
	}
	q := b.sel.Find("summary, h3, h4, dt, .question, [itemprop=name]").First()
	if q.Length() == 0 {
		return ""
	}
	return collapseLines(nodeText(q.Get(0)))
}

// IsHeading reports whether the block is an h1-h6 element.
func (b Block) IsHeading() bool {
	return len(b.Tag) == 2 && b.Tag[0] == 'h' && b.Tag[1] >= '1' && b.Tag[1] <= '6'
}

// Items returns the direct <li> children of a list block, nil for any other block.
func (b Block) Items() []Block {
	if b.sel == nil || (b.Tag != "ul" && b.Tag != "ol") {
		return nil
	}
	var items []Block
	b.sel.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		rendered, err := goquery.OuterHtml(li)
		if err != nil {
			return
		}
		text := collapseLines(nodeText(li.Get(0)))
		items = append(items, Block{Tag: "li", HTML: rendered, Text: text, Words: WordCount(text), sel: li})
	})
	return items
}

// RenderBlocks joins block HTML back into a fragment.
func RenderBlocks(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.HTML)
	}
	return strings.Join(parts, "\n")
}

// #endregion block

// #region document
// Document is a parsed HTML fragment with cached plain text and block list.
type Document struct {
	HTML   string
	body   *goquery.Selection
	blocks []Block
	plain  string
}

// containerTags are wrappers unwrapped when they are the only top-level element.
var containerTags = map[string]bool{"div": true, "section": true, "article": true, "main": true}

// Parse builds a Document from an HTML fragment. Plain text input is accepted as-is.
func Parse(src string) *Document {
	d := &Document{HTML: src}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		d.plain = collapseLines(src)
		return d
	}
	d.body = doc.Find("body")
	d.blocks = collectBlocks(unwrap(d.body))

	lines := make([]string, 0, len(d.blocks))
	for _, b := range d.blocks {
		if b.Text != "" {
			lines = append(lines, b.Text)
		}
	}
	d.plain = strings.Join(lines, "\n")
	return d
}

// Blocks returns the top-level blocks in document order.
func (d *Document) Blocks() []Block {
	return d.blocks
}

// Plain returns the plain text, one line per block-level element.
func (d *Document) Plain() string {
	return d.plain
}

// Words counts plain-text words.
func (d *Document) Words() int {
	return WordCount(d.plain)
}

// HeadingCount counts headings of the given level anywhere in the fragment.
func (d *Document) HeadingCount(level int) int {
	if d.body == nil || level < 1 || level > 6 {
		return 0
	}
	return d.body.Find("h" + string(rune('0'+level))).Length()
}

// InternalLinks returns the folded anchor texts of links pointing inside the site.
func (d *Document) InternalLinks() []string {
	if d.body == nil {
		return nil
	}
	var out []string
	d.body.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "/") || strings.HasPrefix(href, "#") || s.HasClass("internal-link") {
			if t := strings.TrimSpace(Fold(s.Text())); t != "" {
				out = append(out, t)
			}
		}
	})
	return out
}

// #endregion document

// #region helpers
func unwrap(sel *goquery.Selection) *goquery.Selection {
	for {
		var only *goquery.Selection
		elements := 0
		textual := false
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			n := c.Get(0)
			switch n.Type {
			case html.ElementNode:
				elements++
				only = c
			case html.TextNode:
				if strings.TrimSpace(n.Data) != "" {
					textual = true
				}
			}
		})
		if elements != 1 || textual || !containerTags[goquery.NodeName(only)] || isQABlock(only) {
			return sel
		}
		sel = only
	}
}

func isQABlock(s *goquery.Selection) bool {
	class, _ := s.Attr("class")
	return strings.Contains(class, "faq-item") || strings.Contains(class, "qa")
}

func collectBlocks(sel *goquery.Selection) []Block {
	var blocks []Block
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		n := c.Get(0)
		switch n.Type {
		case html.TextNode:
			text := collapseLines(n.Data)
			if text == "" {
				return
			}
			rendered, _ := goquery.OuterHtml(c)
			blocks = append(blocks, Block{Tag: "#text", HTML: strings.TrimSpace(rendered), Text: text, Words: WordCount(text), sel: c})
		case html.ElementNode:
			rendered, err := goquery.OuterHtml(c)
			if err != nil {
				return
			}
			text := collapseLines(nodeText(n))
			blocks = append(blocks, Block{Tag: n.Data, HTML: rendered, Text: text, Words: WordCount(text), sel: c})
		}
	})
	return blocks
}

// lineBreakTags end a line of plain text.
var lineBreakTags = map[string]bool{
	"p": true, "li": true, "br": true, "div": true, "tr": true, "dt": true, "dd": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"summary": true, "details": true, "blockquote": true, "section": true, "table": true,
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		breaks := n.Type == html.ElementNode && lineBreakTags[n.Data]
		if breaks {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if breaks {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return b.String()
}

func collapseLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// #endregion helpers
