package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesetzesinfo/lawsearch/internal/gateway/ratelimit"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS_AllowedOrigin(t *testing.T) {
	h := CORS(NewCORSConfig([]string{"https://gesetze.example"}))(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=mord", nil)
	req.Header.Set("Origin", "https://gesetze.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://gesetze.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ForeignOriginGetsNoHeaders(t *testing.T) {
	h := CORS(NewCORSConfig([]string{"https://gesetze.example"}))(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=mord", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(NewCORSConfig(nil))(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/rate", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestRateLimit_RejectsAfterBudget(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := RateLimit(ratelimit.New(2, time.Minute), m)(ok)

	send := func(addr, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000", "/api/search").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5001", "/api/search").Code)

	rec := send("10.0.0.1:5002", "/api/search")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["code"])

	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000", "/api/search").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5003", "/health/live").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:4711"
	assert.Equal(t, "192.0.2.7", ClientIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", ClientIP(req))
}
