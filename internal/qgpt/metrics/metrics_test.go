package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/qgpt/internal/qgpt/metrics"
)

func TestRecord(t *testing.T) {
	m := metrics.New()

	m.RecordRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	m.RecordSearch("qgpt_a.db", 10*time.Millisecond, nil)
	m.RecordSearch("qgpt_a.db", 10*time.Millisecond, errors.New("boom"))
	m.RecordRecall(0.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("qgpt_a.db", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("qgpt_a.db", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryRecall))
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest(http.MethodGet, "/", http.StatusOK, 0)
		m.RecordSearch("db", 0, nil)
		m.RecordRecall(1)
	})
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.RecordSearch("qgpt_a.db", time.Millisecond, nil)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `qgpt_searches_total{db="qgpt_a.db",status="ok"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
