package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDecision("heuristic", true, false)
	m.ObserveJudge("ok", 0.01, time.Second)
	m.ObserveFeedback("saved", "applied")
	m.ObserveRecompute(1, 0)
	m.ObserveRetention(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRecord(t *testing.T) {
	m := New()
	m.ObserveDecision("llm", true, true)
	m.ObserveDecision("llm", true, true)
	m.ObserveJudge("fallback_timeout", 0, 2*time.Second)
	m.ObserveJudge("ok", 0.002, time.Second)
	m.ObserveFeedback("saved", "applied")
	m.ObserveRetention(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("llm", "true", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.judgeCalls.WithLabelValues("fallback_timeout")))
	assert.InDelta(t, 0.002, testutil.ToFloat64(m.judgeCost), 1e-12)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedback.WithLabelValues("saved", "applied")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.retentionRows))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/ping", "204")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "signals_api_requests_total"))
}
