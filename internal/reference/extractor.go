// Package reference turns uploaded reference files into text for the prompt.
package reference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/docgen/internal/apperr"
	"github.com/nikhilbhutani/docgen/internal/storage"
	"github.com/nikhilbhutani/docgen/pkg/textextract"
)

const defaultConcurrency = 4

// Extractor downloads reference files and extracts their text. Files are
// fetched concurrently but the output keeps the requested order.
type Extractor struct {
	storage     storage.Storage
	maxBytes    int64
	concurrency int
}

func NewExtractor(store storage.Storage, maxBytes int64) *Extractor {
	return &Extractor{storage: store, maxBytes: maxBytes, concurrency: defaultConcurrency}
}

// Extract returns one "### File: <name>" section per file. The first file
// that cannot be read or parsed fails the whole call with an
// apperr.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, fileIDs []string) (string, error) {
	texts := make([]string, len(fileIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, id := range fileIDs {
		g.Go(func() error {
			text, err := e.extractOne(ctx, id)
			if err != nil {
				return &apperr.ExtractionError{FileID: id, Err: err}
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, id := range fileIDs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### File: %s\n%s", path.Base(id), texts[i])
	}
	return b.String(), nil
}

func (e *Extractor) extractOne(ctx context.Context, fileID string) (string, error) {
	ext := strings.ToLower(path.Ext(fileID))
	if !supported(ext) {
		return "", fmt.Errorf("unsupported file type %q", ext)
	}

	rc, err := e.storage.Download(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return "", fmt.Errorf("file exceeds %d bytes", e.maxBytes)
	}

	out, err := textextract.Extract(bytes.NewReader(data), int64(len(data)), ext)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Content)
	if text == "" {
		return "", fmt.Errorf("no text could be extracted")
	}
	return text, nil
}

func supported(ext string) bool {
	for _, t := range textextract.SupportedTypes() {
		if t == ext {
			return true
		}
	}
	return false
}
