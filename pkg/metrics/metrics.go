// Package metrics defines the Prometheus collectors of the search and
// analytics services. Every collector lives under the "lawsearch" namespace
// and is registered on the Registerer passed to New, so tests can use a
// private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lawsearch"

var (
	httpBuckets   = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	searchBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}
)

type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	// outcome: hit, zero_result, rejected, error
	SearchQueriesTotal *prometheus.CounterVec
	// cache_status: hit, miss, disabled
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	// rating: positive, negative; outcome: recorded, rejected
	FeedbackTotal *prometheus.CounterVec

	CorpusProvisions prometheus.Gauge
	CorpusTerms      prometheus.Gauge

	AnalyticsEventsTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request latency by method and route.", Buckets: httpBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),

		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "queries_total",
			Help: "Searches by outcome.",
		}, []string{"outcome"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "latency_seconds",
			Help: "Time from normalisation to registered results.", Buckets: searchBuckets,
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "results",
			Help: "Results returned per search.", Buckets: []float64{0, 1, 3, 5, 10, 20, 50},
		}),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Rankings served from the result cache.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Rankings computed because the cache had none.",
		}),

		FeedbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feedback", Name: "ratings_total",
			Help: "Rating submissions by rating and outcome.",
		}, []string{"rating", "outcome"}),

		CorpusProvisions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "corpus", Name: "provisions",
			Help: "Provisions loaded into the corpus.",
		}),
		CorpusTerms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "corpus", Name: "terms",
			Help: "Distinct terms in the inverted index.",
		}),

		AnalyticsEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analytics", Name: "events_total",
			Help: "Analytics events consumed by type; undecodable events count as type invalid.",
		}, []string{"type"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Circuit breaker state per backend (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
	}

	m.gatherer = prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry the collectors were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
