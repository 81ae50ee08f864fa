package export

import (
	"strings"

	"github.com/nikhilbhutani/docgen/internal/apperr"
)

// Format is one of the closed set of export formats.
type Format string

const (
	FormatDOCX     Format = "docx"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

var formats = []Format{FormatDOCX, FormatPDF, FormatMarkdown, FormatHTML}

// ParseFormat accepts a format name or extension, case-insensitively.
func ParseFormat(s string) (Format, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	if name == "markdown" {
		name = string(FormatMarkdown)
	}
	for _, f := range formats {
		if string(f) == name {
			return f, nil
		}
	}
	return "", &apperr.UnsupportedFormatError{Format: s, Supported: supportedNames()}
}

func supportedNames() []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}

func (f Format) Extension() string {
	return "." + string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		panic("export: unknown format " + string(f))
	}
}

func (f Format) Label() string {
	switch f {
	case FormatDOCX:
		return "Microsoft Word"
	case FormatPDF:
		return "PDF"
	case FormatMarkdown:
		return "Markdown"
	case FormatHTML:
		return "HTML"
	default:
		panic("export: unknown format " + string(f))
	}
}

type FormatInfo struct {
	Format      Format `json:"format"`
	Label       string `json:"label"`
	Extension   string `json:"extension"`
	ContentType string `json:"content_type"`
}

// Formats lists every supported format.
func Formats() []FormatInfo {
	out := make([]FormatInfo, len(formats))
	for i, f := range formats {
		out[i] = FormatInfo{Format: f, Label: f.Label(), Extension: f.Extension(), ContentType: f.ContentType()}
	}
	return out
}
