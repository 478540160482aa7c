package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observe(t *testing.T) {
	c := NewCollector("circlenet_test")

	c.ObserveGraph("create_user", 10*time.Millisecond, nil)
	c.ObserveGraph("create_user", 5*time.Millisecond, errors.New("boom"))
	c.ObserveCache(true)
	c.ObserveCache(false)
	c.ObserveCache(false)
	c.ObserveAgentAction("send_announcements", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.GraphOperations.WithLabelValues("create_user", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GraphOperations.WithLabelValues("create_user", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.AgentActions.WithLabelValues("send_announcements", "ok")))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveHTTP("GET", "/health", 200, time.Millisecond)
		c.ObserveMatrix("send", nil)
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("circlenet_test")
	c.ObserveHTTP("GET", "/health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "circlenet_test_http_requests_total")
}
