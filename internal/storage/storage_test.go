package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docgen/internal/apperr"
)

func TestDirStorage(t *testing.T) {
	s := NewFSStorage(fstest.MapFS{
		"specs/brief.md": {Data: []byte("# Brief")},
	})

	rc, err := s.Download(context.Background(), "/specs/brief.md")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "# Brief", string(data))

	_, err = s.Download(context.Background(), "specs/missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Download(context.Background(), "../etc/passwd")
	assert.True(t, apperr.IsValidation(err))
}

func TestSupabaseDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		switch r.URL.EscapedPath() {
		case "/storage/v1/object/references/team/notes%20v2.txt":
			_, _ = w.Write([]byte("notes"))
		case "/storage/v1/object/references/team/broken.txt":
			http.Error(w, "bucket offline", http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewSupabaseStorage(srv.URL+"/", "service-key", "references")

	rc, err := s.Download(context.Background(), "team/notes v2.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "notes", string(data))

	_, err = s.Download(context.Background(), "team/gone.txt")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.Download(context.Background(), "team/broken.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "bucket offline")
}
