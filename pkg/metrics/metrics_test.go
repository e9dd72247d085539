package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FeedbackTotal.WithLabelValues("positive", "recorded").Inc()
	m.CorpusProvisions.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedbackTotal.WithLabelValues("positive", "recorded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CorpusProvisions))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_TwoRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.CacheHitsTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lawsearch_cache_hits_total 1")
}
