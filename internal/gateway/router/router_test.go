package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/gesetzesinfo/lawsearch/internal/gateway/ratelimit"
	"github.com/gesetzesinfo/lawsearch/pkg/health"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
)

type stubAPI struct{}

func (stubAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/laws/count", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count":3}`))
	})
}

func newHandler() http.Handler {
	checker := health.NewChecker()
	checker.Register("corpus", health.Static(health.StatusUp, "3 provisions"))
	return New(Options{
		Limiter:        ratelimit.New(1, time.Minute),
		RequestTimeout: time.Second,
		Metrics:        metrics.New(prometheus.NewRegistry()),
		Health:         checker,
	}, stubAPI{})
}

func TestRouter_ServesAPIWithRequestID(t *testing.T) {
	h := newHandler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/laws/count", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_HealthAndMetricsBypassRateLimit(t *testing.T) {
	h := newHandler()
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRouter_RateLimitsAPI(t *testing.T) {
	h := newHandler()
	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/laws/count", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/laws/count", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	h := newHandler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
