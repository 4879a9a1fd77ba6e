package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionMetrics(t *testing.T) {
	m := NewMetrics()

	m.CompletionStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeCompletions))

	m.CompletionFinished("normal", "sent", 150*time.Millisecond)
	m.ObserveStream(3, 1)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeCompletions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("normal", "sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.deltas))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.malformedEvents))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CompletionStarted()
		m.CompletionFinished("retry", "error", time.Second)
		m.ObserveStream(1, 0)
		m.ProxyRequest(http.StatusOK)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.ProxyRequest(http.StatusUnauthorized)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `viper_proxy_requests_total{status="401"} 1`)
}
