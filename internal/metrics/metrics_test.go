package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposed(t *testing.T) {
	m := New()
	m.JobsSubmitted.Inc()
	m.JobsFinished.WithLabelValues("completed").Inc()
	m.ExportsRendered.WithLabelValues("pdf", "miss").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("completed")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "docgen_jobs_submitted_total 1")
	assert.Contains(t, string(body), `docgen_exports_total{cache="miss",format="pdf"} 1`)
}

func TestNewIsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.JobsSubmitted.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.JobsSubmitted))
}
