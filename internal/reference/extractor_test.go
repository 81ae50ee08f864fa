package reference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/storage"
)

func newExtractor() *Extractor {
	return NewExtractor(storage.NewFSStorage(fstest.MapFS{
		"a/requirements.txt": {Data: []byte("Track stock levels.")},
		"b/overview.md":      {Data: []byte("# Overview\n\nWarehouse app.")},
		"c/page.html":        {Data: []byte("<h2>Scope</h2><p>Two sites.</p>")},
		"d/empty.txt":        {Data: []byte("   ")},
		"e/big.txt":          {Data: make([]byte, 2048)},
		"f/tool.exe":         {Data: []byte("MZ")},
	}), 1024)
}

func TestExtractKeepsRequestOrder(t *testing.T) {
	text, err := newExtractor().Extract(context.Background(), []string{
		"c/page.html", "a/requirements.txt", "b/overview.md",
	})
	require.NoError(t, err)

	assert.Contains(t, text, "## Scope")
	assert.Contains(t, text, "### File: requirements.txt\nTrack stock levels.\n\n"+
		"### File: overview.md\n# Overview\n\nWarehouse app.")

	page := strings.Index(text, "### File: page.html")
	reqs := strings.Index(text, "### File: requirements.txt")
	assert.Equal(t, 0, page)
	assert.Greater(t, reqs, page)
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name   string
		fileID string
		want   string
	}{
		{"missing", "a/missing.txt", "not found"},
		{"empty", "d/empty.txt", "no text"},
		{"too large", "e/big.txt", "exceeds 1024 bytes"},
		{"unsupported", "f/tool.exe", "unsupported file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newExtractor().Extract(context.Background(), []string{"a/requirements.txt", tt.fileID})
			require.Error(t, err)

			var ee *apperr.ExtractionError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.fileID, ee.FileID)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtractNoFiles(t *testing.T) {
	text, err := newExtractor().Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}
