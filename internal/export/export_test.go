package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/cache"
	"github.com/nikhilbhutani/docgen/internal/job"
	"github.com/nikhilbhutani/docgen/internal/metrics"
	"github.com/nikhilbhutani/docgen/internal/models"
	"github.com/nikhilbhutani/docgen/pkg/textextract"
)

const sample = "# Inventory Plan\n\n" +
	"Intro with **bold**, *italic* and `code`.\n\n" +
	"## Scope\n\n" +
	"- first item\n" +
	"  - nested item\n" +
	"- second item\n\n" +
	"1. step one\n" +
	"2. step two\n\n" +
	"> quoted note\n\n" +
	"```go\nfmt.Println(\"hi\")\n```\n\n" +
	"| Name | Qty |\n|------|-----|\n| Bolt | 4 |\n\n" +
	"---\n\nDone & dusted.\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completedJob(content string) *models.GenerationJob {
	done := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return &models.GenerationJob{
		ID:          uuid.MustParse("0b5c9a2e-1f3d-4c8a-9e61-7d2f0a4b8c13"),
		Status:      models.JobStatusCompleted,
		Content:     content,
		Language:    "en",
		CreatedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"docx", FormatDOCX},
		{"PDF", FormatPDF},
		{".md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{" html ", FormatHTML},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("exe")
	var ue *apperr.UnsupportedFormatError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "exe", ue.Format)
	assert.Equal(t, []string{"docx", "pdf", "md", "html"}, ue.Supported)
}

func TestFormatsListing(t *testing.T) {
	list := Formats()
	require.Len(t, list, 4)
	assert.Equal(t, FormatDOCX, list[0].Format)
	assert.Equal(t, ".docx", list[0].Extension)
	assert.Equal(t, "application/pdf", list[1].ContentType)
	assert.Equal(t, "Markdown", list[2].Label)
}

func TestParseBlocks(t *testing.T) {
	doc := Parse(sample)
	assert.Equal(t, "Inventory Plan", doc.Title)

	var kinds []BlockKind
	for _, b := range doc.Blocks {
		kinds = append(kinds, b.Kind)
	}
	assert.Equal(t, []BlockKind{
		BlockHeading, BlockParagraph, BlockHeading,
		BlockListItem, BlockListItem, BlockListItem,
		BlockListItem, BlockListItem,
		BlockQuote, BlockCode, BlockTable, BlockRule, BlockParagraph,
	}, kinds)

	intro := doc.Blocks[1].Runs
	assert.Contains(t, intro, Run{Text: "bold", Bold: true})
	assert.Contains(t, intro, Run{Text: "italic", Italic: true})
	assert.Contains(t, intro, Run{Text: "code", Code: true})

	assert.Equal(t, "•", doc.Blocks[3].Marker)
	assert.Equal(t, 0, doc.Blocks[3].Level)
	assert.Equal(t, "nested item", PlainText(doc.Blocks[4].Runs))
	assert.Equal(t, 1, doc.Blocks[4].Level)
	assert.Equal(t, "2.", doc.Blocks[7].Marker)

	assert.Equal(t, `fmt.Println("hi")`, doc.Blocks[9].Code)
	tbl := doc.Blocks[10]
	require.Len(t, tbl.Header, 2)
	assert.Equal(t, "Qty", PlainText(tbl.Header[1]))
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "Bolt", PlainText(tbl.Rows[0][0]))
	assert.Equal(t, "Done & dusted.", PlainText(doc.Blocks[12].Runs))
}

func TestRenderDeterministic(t *testing.T) {
	j := completedJob(sample)
	for _, f := range formats {
		t.Run(string(f), func(t *testing.T) {
			a, err := Render(j, f, Options{})
			require.NoError(t, err)
			b, err := Render(j.Clone(), f, Options{})
			require.NoError(t, err)

			assert.NotEmpty(t, a.Data)
			assert.True(t, bytes.Equal(a.Data, b.Data), "output differs between renders")
			assert.Equal(t, "Inventory_Plan"+f.Extension(), a.Filename)
			assert.Equal(t, f.ContentType(), a.ContentType)
		})
	}
}

func TestRenderFormats(t *testing.T) {
	j := completedJob(sample)

	t.Run("docx readable", func(t *testing.T) {
		a, err := Render(j, FormatDOCX, Options{})
		require.NoError(t, err)
		text, err := textextract.Extract(bytes.NewReader(a.Data), int64(len(a.Data)), "docx")
		require.NoError(t, err)
		for _, want := range []string{"Inventory Plan", "Scope", "nested item", "quoted note", "Bolt", "Done & dusted."} {
			assert.Contains(t, text.Content, want)
		}
	})

	t.Run("pdf header", func(t *testing.T) {
		a, err := Render(j, FormatPDF, Options{})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(a.Data, []byte("%PDF-")))
	})

	t.Run("html page", func(t *testing.T) {
		a, err := Render(j, FormatHTML, Options{})
		require.NoError(t, err)
		page := string(a.Data)
		assert.Contains(t, page, `<html lang="en">`)
		assert.Contains(t, page, "<title>Inventory Plan</title>")
		assert.Contains(t, page, "<strong>bold</strong>")
		assert.Contains(t, page, "<table>")
	})

	t.Run("markdown verbatim", func(t *testing.T) {
		a, err := Render(j, FormatMarkdown, Options{})
		require.NoError(t, err)
		assert.Equal(t, sample, string(a.Data))
	})
}

func TestRenderNotCompleted(t *testing.T) {
	pending := completedJob("")
	pending.Status = models.JobStatusProcessing
	_, err := Render(pending, FormatPDF, Options{})
	assert.ErrorIs(t, err, apperr.ErrNotReady)

	failed := completedJob("")
	failed.Status = models.JobStatusFailed
	failed.Error = "generation timed out after 2m0s"
	_, err = Render(failed, FormatPDF, Options{})
	assert.ErrorIs(t, err, apperr.ErrJobFailed)
}

const vietnamese = "# Tài liệu đặc tả\n\nHệ thống quản lý kho hàng.\n"

func dejaVu(t *testing.T) Options {
	t.Helper()
	const dir = "/usr/share/fonts/truetype/dejavu/"
	if _, err := os.Stat(dir + "DejaVuSans.ttf"); err != nil {
		t.Skip("DejaVu fonts not installed")
	}
	return Options{FontPath: dir + "DejaVuSans.ttf", BoldFontPath: dir + "DejaVuSans-Bold.ttf"}
}

// pageContents returns the decompressed content streams of every page.
func pageContents(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var out []byte
	for i := 1; i <= r.NumPage(); i++ {
		rc := r.Page(i).V.Key("Contents").Reader()
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out = append(out, b...)
	}
	return out
}

func utf16BE(t *testing.T, s string) []byte {
	t.Helper()
	b, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return b
}

func TestRenderPDFUnicode(t *testing.T) {
	a, err := Render(completedJob(vietnamese), FormatPDF, dejaVu(t))
	require.NoError(t, err)
	assert.Contains(t, string(a.Data), "/Encoding /Identity-H")

	// Identity-H text is shown as UTF-16BE code points, so every word of the
	// source must appear unchanged in the page stream.
	contents := pageContents(t, a.Data)
	for _, word := range []string{"Tài", "liệu", "đặc", "tả", "Hệ", "thống", "quản", "lý", "kho", "hàng."} {
		assert.True(t, bytes.Contains(contents, utf16BE(t, word)), "missing %q", word)
	}
}

func TestRenderPDFCoreFonts(t *testing.T) {
	_, err := Render(completedJob(vietnamese), FormatPDF, Options{})
	require.ErrorIs(t, err, apperr.ErrUnrenderable)
	assert.Contains(t, err.Error(), "PDF_FONT_PATH")
	assert.Equal(t, http.StatusUnprocessableEntity, apperr.HTTPStatus(err))

	missing := Options{FontPath: "/nonexistent/DejaVuSans.ttf", BoldFontPath: "/nonexistent/DejaVuSans-Bold.ttf"}
	_, err = Render(completedJob(vietnamese), FormatPDF, missing)
	require.ErrorIs(t, err, apperr.ErrUnrenderable)

	a, err := Render(completedJob(sample), FormatPDF, missing)
	require.NoError(t, err)
	text, err := textextract.Extract(bytes.NewReader(a.Data), int64(len(a.Data)), "pdf")
	require.NoError(t, err)
	assert.Contains(t, text.Content, "Inventory Plan")

	// Other formats carry UTF-8 as is.
	md, err := Render(completedJob(vietnamese), FormatMarkdown, Options{})
	require.NoError(t, err)
	assert.Equal(t, vietnamese, string(md.Data))
}

func TestFilename(t *testing.T) {
	id := uuid.MustParse("0b5c9a2e-1f3d-4c8a-9e61-7d2f0a4b8c13")
	tests := []struct {
		title string
		want  string
	}{
		{"Release Notes: v2/beta", "Release_Notes_v2beta"},
		{"  spaced   out  ", "spaced_out"},
		{"", "document-0b5c9a2e"},
		{`<>:"/\|?*`, "document-0b5c9a2e"},
		{strings.Repeat("é", 60), strings.Repeat("é", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.title, id))
		})
	}
}

func completedInRegistry(t *testing.T, reg *job.MemoryRegistry, content string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id, err := reg.CreatePending(ctx, job.Spec{Language: "en"})
	require.NoError(t, err)
	claimed, err := reg.Claim(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, reg.Complete(ctx, id, job.Result{Content: content}))
	return id
}

func TestServiceRender(t *testing.T) {
	ctx := context.Background()
	reg := job.NewMemoryRegistry()
	svc := NewService(reg, nil, Config{}, nil, discardLogger())

	id := completedInRegistry(t, reg, sample)
	a, err := svc.Render(ctx, id, "docx")
	require.NoError(t, err)
	assert.Equal(t, "Inventory_Plan.docx", a.Filename)

	again, err := svc.Render(ctx, id, "DOCX")
	require.NoError(t, err)
	assert.Equal(t, a.Data, again.Data)

	_, err = svc.Render(ctx, id, "exe")
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	_, err = svc.Render(ctx, uuid.New(), "pdf")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	pending, err := reg.CreatePending(ctx, job.Spec{})
	require.NoError(t, err)
	_, err = svc.Render(ctx, pending, "pdf")
	assert.ErrorIs(t, err, apperr.ErrNotReady)
}

func TestServiceCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	reg := job.NewMemoryRegistry()
	m := metrics.New()
	svc := NewService(reg, cache.NewCache(client), Config{CacheTTL: time.Minute}, m, discardLogger())
	id := completedInRegistry(t, reg, sample)

	first, err := svc.Render(ctx, id, "pdf")
	require.NoError(t, err)
	assert.True(t, mr.Exists("export:"+id.String()+":pdf"))

	second, err := svc.Render(ctx, id, "pdf")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsRendered.WithLabelValues("pdf", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsRendered.WithLabelValues("pdf", "hit")))
}
