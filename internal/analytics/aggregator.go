package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gesetzesinfo/lawsearch/pkg/kafka"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	FeedbackTotal     int64        `json:"feedback_total"`
	HelpfulCount      int64        `json:"helpful_count"`
	UnrelatedCount    int64        `json:"unrelated_count"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds decoded events into running statistics.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	feedbackTotal     int64
	helpful           int64
	unrelated         int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time

	metrics *metrics.Metrics
	logger  *slog.Logger
}

type AggregatorOption func(*Aggregator)

// WithEventMetrics counts consumed events by type.
func WithEventMetrics(m *metrics.Metrics) AggregatorOption {
	return func(a *Aggregator) { a.metrics = m }
}

func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler adapts the aggregator to a Kafka consumer. The event-type header,
// when present, selects the decoder; undecodable messages are logged and
// acknowledged so they do not block the partition.
func (a *Aggregator) Handler() kafka.MessageHandler {
	return func(_ context.Context, msg kafka.Message) error {
		var (
			event any
			err   error
		)
		if msg.Type != "" {
			event, err = decodeAs(EventType(msg.Type), msg.Value)
		} else {
			event, err = Decode(msg.Value)
		}
		if err != nil {
			a.logger.Error("failed to decode analytics event",
				"key", msg.Key,
				"type", msg.Type,
				"offset", msg.Offset,
				"error", err,
			)
			a.countEvent("invalid")
			return nil
		}
		a.Record(event)
		return nil
	}
}

// Record applies one event.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
		a.countEvent(string(e.Type))
	case FeedbackEvent:
		a.recordFeedback(e)
		a.countEvent(string(e.Type))
	}
}

func (a *Aggregator) countEvent(eventType string) {
	if a.metrics != nil {
		a.metrics.AnalyticsEventsTotal.WithLabelValues(eventType).Inc()
	}
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	if event.Type == EventZeroResult || event.Returned == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) recordFeedback(event FeedbackEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.feedbackTotal++
	switch event.Rating {
	case "helpful":
		a.helpful++
	case "unrelated":
		a.unrelated++
	}
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart of the analytics service. Latency samples are not restored.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches = s.TotalSearches
	a.cacheHits = s.CacheHits
	a.cacheMisses = s.CacheMisses
	a.zeroResults = s.ZeroResultCount
	a.feedbackTotal = s.FeedbackTotal
	a.helpful = s.HelpfulCount
	a.unrelated = s.UnrelatedCount
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] = q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] = q.Count
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		FeedbackTotal:   a.feedbackTotal,
		HelpfulCount:    a.helpful,
		UnrelatedCount:  a.unrelated,
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending for stable output.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
