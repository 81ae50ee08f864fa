package textextract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, data []byte, fileType string) *ExtractedText {
	t.Helper()
	out, err := Extract(bytes.NewReader(data), int64(len(data)), fileType)
	require.NoError(t, err)
	return out
}

func TestExtractPlainAndMarkdown(t *testing.T) {
	out := extract(t, []byte("  hello world \n"), ".txt")
	assert.Equal(t, "hello world", out.Content)
	assert.Equal(t, "txt", out.Metadata["type"])

	out = extract(t, []byte("# Title\n\n- item\n"), "text/markdown")
	assert.Equal(t, "# Title\n\n- item", out.Content)
	assert.Equal(t, "md", out.Metadata["type"])
}

func TestExtractHTMLToMarkdown(t *testing.T) {
	page := `<html><head><style>h1{color:red}</style><script>alert(1)</script></head>
<body><h1>Inventory</h1><p>Tracks <strong>stock</strong>.</p>
<table><thead><tr><th>Item</th><th>Qty</th></tr></thead><tbody><tr><td>Bolt</td><td>4</td></tr></tbody></table>
</body></html>`

	out := extract(t, []byte(page), ".html")
	assert.Contains(t, out.Content, "# Inventory")
	assert.Contains(t, out.Content, "**stock**")
	assert.Contains(t, out.Content, "| Bolt")
	assert.NotContains(t, out.Content, "alert")
	assert.NotContains(t, out.Content, "color:red")
}

func TestExtractDOCXKeepsParagraphs(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body>` +
		`<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> line</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>R&amp;D notes</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	out := extract(t, buf.Bytes(), "docx")
	assert.Equal(t, "First line\nR&D notes", out.Content)
}

func TestExtractUnsupported(t *testing.T) {
	_, err := Extract(bytes.NewReader([]byte("MZ")), 2, ".exe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
