package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
)

// routes are reported verbatim as the path label; anything else, such as
// scanner traffic, is folded into "other" to bound label cardinality.
var routes = map[string]bool{
	"/api/search":              true,
	"/api/rate":                true,
	"/api/laws/count":          true,
	"/api/terms/count":         true,
	"/api/cache/stats":         true,
	"/api/cache/invalidate":    true,
	"/api/analytics":           true,
	"/api/analytics/snapshots": true,
	"/health/live":             true,
	"/health/ready":            true,
	"/metrics":                 true,
}

func routeLabel(path string) string {
	if routes[path] {
		return path
	}
	return "other"
}

// Metrics records request count, latency and in-flight requests.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			route := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// code is 200 for a handler that wrote nothing.
func (rec *statusRecorder) code() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}
