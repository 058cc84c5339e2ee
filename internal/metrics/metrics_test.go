package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/lesionscan/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := metrics.New()
	m.JobCreated()
	m.JobCreated()
	m.JobFinished("completed", 120*time.Millisecond)
	m.JobFinished("failed", time.Second)
	m.Classified("simulated", metrics.OutcomeSuccess)
	m.Classified("remote", metrics.OutcomeError)

	out := scrape(t, m)
	assert.Contains(t, out, "lesionscan_jobs_created_total 2")
	assert.Contains(t, out, `lesionscan_jobs_finished_total{status="completed"} 1`)
	assert.Contains(t, out, `lesionscan_jobs_finished_total{status="failed"} 1`)
	assert.Contains(t, out, "lesionscan_job_duration_seconds_count 2")
	assert.Contains(t, out, `lesionscan_classifications_total{classifier="simulated",outcome="success"} 1`)
	assert.Contains(t, out, `lesionscan_classifications_total{classifier="remote",outcome="error"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := metrics.New()
	b := metrics.New()
	a.JobCreated()

	assert.Contains(t, scrape(t, a), "lesionscan_jobs_created_total 1")
	assert.Contains(t, scrape(t, b), "lesionscan_jobs_created_total 0")
}
