package export

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/nikhilbhutani/docgen/internal/apperr"
)

const (
	pdfMargin     = 20.0
	pdfBodySize   = 11.0
	pdfLineHeight = 5.5
	pdfCodeSize   = 9.0
	utf8Family    = "docgen"
)

var pdfHeadingSizes = [...]float64{0, 20, 16, 14, 12, 11, 11}

type pdfWriter struct {
	pdf  *fpdf.Fpdf
	body string
	mono string
	tr   func(string) string
}

// renderPDF lays out doc on A4 pages. Creation and modification dates are
// pinned to ts and catalog maps are sorted, so equal input yields equal bytes.
// Without a TrueType font the core Helvetica font is used, which only covers
// Windows-1252; content outside it is rejected rather than substituted.
func renderPDF(doc *Document, ts time.Time, opts Options) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(ts.UTC())
	pdf.SetModificationDate(ts.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetCompression(true)
	pdf.SetCreator("docgen", true)
	pdf.SetTitle(doc.Title, true)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.AliasNbPages("")

	w := &pdfWriter{pdf: pdf, body: "Helvetica", mono: "Courier", tr: pdf.UnicodeTranslatorFromDescriptor("")}
	if regular := fontFile(opts.FontPath); regular != "" {
		bold := fontFile(opts.BoldFontPath)
		if bold == "" {
			bold = regular
		}
		pdf.AddUTF8Font(utf8Family, "", regular)
		pdf.AddUTF8Font(utf8Family, "I", regular)
		pdf.AddUTF8Font(utf8Family, "B", bold)
		pdf.AddUTF8Font(utf8Family, "BI", bold)
		w.body, w.mono = utf8Family, utf8Family
		w.tr = func(s string) string { return s }
	} else if r, ok := firstOutsideCP1252(doc); ok {
		return nil, fmt.Errorf("render pdf: %q needs a Unicode font, set PDF_FONT_PATH to a TrueType file: %w", r, apperr.ErrUnrenderable)
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(w.body, "I", 8)
		pdf.SetTextColor(107, 114, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	for _, b := range doc.Blocks {
		w.block(b)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *pdfWriter) block(b Block) {
	pdf := w.pdf
	pdf.SetTextColor(31, 41, 55)

	switch b.Kind {
	case BlockHeading:
		size := pdfHeadingSizes[min(max(b.Level, 1), 6)]
		pdf.Ln(2)
		pdf.SetTextColor(29, 78, 216)
		pdf.SetFont(w.body, "B", size)
		pdf.MultiCell(0, size*0.5, w.tr(PlainText(b.Runs)), "", "L", false)
		if b.Level == 1 {
			y := pdf.GetY() + 1
			pageW, _ := pdf.GetPageSize()
			pdf.SetDrawColor(37, 99, 235)
			pdf.Line(pdfMargin, y, pageW-pdfMargin, y)
			pdf.Ln(3)
		}
		pdf.Ln(2)

	case BlockParagraph:
		w.runs(b.Runs, pdfBodySize)
		pdf.Ln(pdfLineHeight + 2)

	case BlockQuote:
		pdf.SetLeftMargin(pdfMargin + 8)
		pdf.SetX(pdfMargin + 8)
		pdf.SetTextColor(107, 114, 128)
		w.runs(italic(b.Runs), pdfBodySize)
		pdf.SetLeftMargin(pdfMargin)
		pdf.Ln(pdfLineHeight + 2)

	case BlockListItem:
		indent := pdfMargin + 6*float64(b.Level+1)
		if b.Marker != "" {
			pdf.SetFont(w.body, "", pdfBodySize)
			pdf.SetX(indent - 5)
			pdf.Write(pdfLineHeight, w.tr(b.Marker))
		}
		pdf.SetLeftMargin(indent)
		pdf.SetX(indent)
		w.runs(b.Runs, pdfBodySize)
		pdf.SetLeftMargin(pdfMargin)
		pdf.Ln(pdfLineHeight + 1)

	case BlockCode:
		pdf.SetFont(w.mono, "", pdfCodeSize)
		pdf.SetFillColor(243, 244, 246)
		pdf.MultiCell(0, 4.5, w.tr(b.Code), "", "L", true)
		pdf.Ln(3)

	case BlockTable:
		w.table(b)
		pdf.Ln(3)

	case BlockRule:
		y := pdf.GetY() + 2
		pageW, _ := pdf.GetPageSize()
		pdf.SetDrawColor(209, 213, 219)
		pdf.Line(pdfMargin, y, pageW-pdfMargin, y)
		pdf.Ln(6)
	}
}

func (w *pdfWriter) runs(runs []Run, size float64) {
	for _, r := range runs {
		family, style := w.body, ""
		if r.Code {
			family = w.mono
		}
		if r.Bold {
			style += "B"
		}
		if r.Italic {
			style += "I"
		}
		w.pdf.SetFont(family, style, size)
		w.pdf.Write(pdfLineHeight, w.tr(r.Text))
	}
}

func (w *pdfWriter) table(b Block) {
	pdf := w.pdf
	cols := len(b.Header)
	for _, row := range b.Rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}
	pageW, pageH := pdf.GetPageSize()
	colW := (pageW - 2*pdfMargin) / float64(cols)
	pdf.SetDrawColor(209, 213, 219)

	row := func(cells [][]Run, header bool) {
		style := ""
		if header {
			style = "B"
		}
		pdf.SetFont(w.body, style, 10)

		texts := make([]string, cols)
		lines := 1
		for i := range cols {
			if i < len(cells) {
				texts[i] = w.tr(PlainText(cells[i]))
			}
			lines = max(lines, len(w.wrap(texts[i], colW-2)))
		}
		h := float64(lines)*5 + 2
		if pdf.GetY()+h > pageH-pdfMargin {
			pdf.AddPage()
			pdf.SetFont(w.body, style, 10)
		}

		y := pdf.GetY()
		for i, text := range texts {
			x := pdfMargin + float64(i)*colW
			if header {
				pdf.SetFillColor(243, 244, 246)
				pdf.Rect(x, y, colW, h, "FD")
			} else {
				pdf.Rect(x, y, colW, h, "D")
			}
			pdf.SetXY(x+1, y+1)
			pdf.MultiCell(colW-2, 5, text, "", "L", false)
		}
		pdf.SetXY(pdfMargin, y+h)
	}

	if len(b.Header) > 0 {
		row(b.Header, true)
	}
	for _, r := range b.Rows {
		row(r, false)
	}
}

// wrap splits text into lines no wider than width in the current font. It
// measures with GetStringWidth, which copes with both translated single-byte
// text and UTF-8 fonts.
func (w *pdfWriter) wrap(text string, width float64) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var line string
		for _, word := range strings.Fields(para) {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if line != "" && w.pdf.GetStringWidth(candidate) > width {
				lines = append(lines, line)
				line = word
				continue
			}
			line = candidate
		}
		lines = append(lines, line)
	}
	return lines
}

func italic(runs []Run) []Run {
	out := make([]Run, len(runs))
	for i, r := range runs {
		r.Italic = true
		out[i] = r
	}
	return out
}

func fontFile(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}

// firstOutsideCP1252 finds the first rune of doc the core fonts cannot draw.
func firstOutsideCP1252(doc *Document) (rune, bool) {
	texts := []string{doc.Title}
	for _, b := range doc.Blocks {
		texts = append(texts, b.Marker, b.Code, PlainText(b.Runs))
		for _, cell := range b.Header {
			texts = append(texts, PlainText(cell))
		}
		for _, row := range b.Rows {
			for _, cell := range row {
				texts = append(texts, PlainText(cell))
			}
		}
	}
	for _, t := range texts {
		for _, r := range t {
			if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
				return r, true
			}
		}
	}
	return 0, false
}
