package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPObserve(t *testing.T) {
	var nilMetrics *HTTP
	assert.NotPanics(t, func() { nilMetrics.Observe(http.MethodGet, "/healthz", 200, time.Millisecond) })

	reg := NewRegistry()
	m := NewHTTP(reg)
	m.Observe(http.MethodPost, "/submissions", http.StatusCreated, 5*time.Millisecond)
	m.Observe(http.MethodPost, "/submissions", http.StatusCreated, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodPost, "/submissions", "201")))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ssot_http_requests_total")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
