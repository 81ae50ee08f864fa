package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docgen/internal/models"
)

func TestDispatcherDeliversSignedEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, Sign(body, "s3cret"), r.Header.Get("X-Docgen-Signature"))

		var ev Event
		assert.NoError(t, json.Unmarshal(body, &ev))
		assert.Equal(t, ev.Event, r.Header.Get("X-Docgen-Event"))

		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "s3cret", slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ok := &models.GenerationJob{ID: uuid.New(), Status: models.JobStatusCompleted, CompletedAt: &done}
	bad := &models.GenerationJob{ID: uuid.New(), Status: models.JobStatusFailed, Error: "generation timed out after 2m0s"}
	d.JobFinished(context.Background(), ok)
	d.JobFinished(context.Background(), bad)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, EventJobCompleted, received[0].Event)
	assert.Equal(t, ok.ID, received[0].JobID)
	assert.True(t, done.Equal(*received[0].CompletedAt))
	assert.Equal(t, EventJobFailed, received[1].Event)
	assert.Equal(t, "generation timed out after 2m0s", received[1].Error)
}

func TestSign(t *testing.T) {
	assert.Equal(t,
		"sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		Sign([]byte("The quick brown fox jumps over the lazy dog"), "key"))
}

func TestDispatcherEnqueueAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	failed := &models.GenerationJob{ID: uuid.New(), Status: models.JobStatusFailed, Error: "job abandoned"}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				d.JobFinished(context.Background(), failed)
			}
		}()
	}
	d.Close()
	wg.Wait()

	assert.NotPanics(t, func() { d.JobFinished(context.Background(), failed) })
	assert.NotPanics(t, d.Close)
}
