package export

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Run is a span of inline text sharing one style.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
	Strike bool
}

type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockListItem
	BlockCode
	BlockQuote
	BlockTable
	BlockRule
)

// Block is one layout unit shared by the DOCX and PDF writers.
type Block struct {
	Kind BlockKind
	// Level is the heading level, or the list nesting depth from 0.
	Level int
	// Marker is the bullet or number of the first paragraph of a list item.
	Marker string
	Runs   []Run
	Code   string
	Header [][]Run
	Rows   [][][]Run
}

// Document is markdown content flattened into blocks.
type Document struct {
	Title  string
	Blocks []Block
}

// Parse reads GitHub-flavored markdown. The title is the text of the first
// level-one heading.
func Parse(content string) *Document {
	src := []byte(content)
	p := &parser{src: src, doc: &Document{}}
	p.blocks(markdown.Parser().Parse(text.NewReader(src)), 0, false)
	return p.doc
}

type parser struct {
	src []byte
	doc *Document
}

func (p *parser) add(b Block) {
	if b.Kind == BlockHeading && b.Level == 1 && p.doc.Title == "" {
		p.doc.Title = strings.TrimSpace(PlainText(b.Runs))
	}
	p.doc.Blocks = append(p.doc.Blocks, b)
}

func (p *parser) blocks(parent ast.Node, depth int, quoted bool) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		p.block(n, depth, quoted)
	}
}

func (p *parser) block(n ast.Node, depth int, quoted bool) {
	switch n := n.(type) {
	case *ast.Heading:
		p.add(Block{Kind: BlockHeading, Level: n.Level, Runs: p.inlines(n)})
	case *ast.Paragraph, *ast.TextBlock:
		kind := BlockParagraph
		if quoted {
			kind = BlockQuote
		}
		p.add(Block{Kind: kind, Runs: p.inlines(n)})
	case *ast.List:
		p.list(n, depth, quoted)
	case *ast.Blockquote:
		p.blocks(n, depth, true)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		p.add(Block{Kind: BlockCode, Code: p.lines(n)})
	case *ast.ThematicBreak:
		p.add(Block{Kind: BlockRule})
	case *east.Table:
		p.table(n)
	case *ast.HTMLBlock:
		// Raw HTML has no layout equivalent.
	default:
		p.blocks(n, depth, quoted)
	}
}

func (p *parser) list(l *ast.List, depth int, quoted bool) {
	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if l.IsOrdered() {
			marker = strconv.Itoa(num) + "."
			num++
		}
		if item.FirstChild() == nil {
			p.add(Block{Kind: BlockListItem, Level: depth, Marker: marker})
			continue
		}
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				p.add(Block{Kind: BlockListItem, Level: depth, Marker: marker, Runs: p.inlines(c)})
				marker = ""
			case *ast.List:
				p.list(c, depth+1, quoted)
			default:
				p.block(c, depth+1, quoted)
			}
		}
	}
}

func (p *parser) table(t *east.Table) {
	b := Block{Kind: BlockTable}
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells [][]Run
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, p.inlines(cell))
		}
		if _, ok := row.(*east.TableHeader); ok {
			b.Header = cells
		} else {
			b.Rows = append(b.Rows, cells)
		}
	}
	p.add(b)
}

func (p *parser) lines(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(p.src))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *parser) inlines(n ast.Node) []Run {
	var runs []Run
	p.inline(n, Run{}, &runs)
	return mergeRuns(runs)
}

func (p *parser) inline(parent ast.Node, style Run, runs *[]Run) {
	emit := func(s string) {
		if s == "" {
			return
		}
		r := style
		r.Text = s
		*runs = append(*runs, r)
	}

	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			emit(string(c.Segment.Value(p.src)))
			switch {
			case c.HardLineBreak():
				emit("\n")
			case c.SoftLineBreak():
				emit(" ")
			}
		case *ast.String:
			emit(string(c.Value))
		case *ast.CodeSpan:
			s := style
			s.Code = true
			p.inline(c, s, runs)
		case *ast.Emphasis:
			s := style
			if c.Level >= 2 {
				s.Bold = true
			} else {
				s.Italic = true
			}
			p.inline(c, s, runs)
		case *east.Strikethrough:
			s := style
			s.Strike = true
			p.inline(c, s, runs)
		case *east.TaskCheckBox:
			if c.IsChecked {
				emit("[x] ")
			} else {
				emit("[ ] ")
			}
		case *ast.AutoLink:
			emit(string(c.Label(p.src)))
		case *ast.RawHTML:
		default:
			p.inline(c, style, runs)
		}
	}
}

func mergeRuns(runs []Run) []Run {
	var out []Run
	for _, r := range runs {
		if n := len(out); n > 0 && sameStyle(out[n-1], r) {
			out[n-1].Text += r.Text
			continue
		}
		out = append(out, r)
	}
	return out
}

func sameStyle(a, b Run) bool {
	return a.Bold == b.Bold && a.Italic == b.Italic && a.Code == b.Code && a.Strike == b.Strike
}

// PlainText joins the text of runs without styling.
func PlainText(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text)
	}
	return b.String()
}
