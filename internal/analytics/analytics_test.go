package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesetzesinfo/lawsearch/pkg/kafka"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	fail   error
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, slices.Clone(events)...)
	return nil
}

func (f *fakePublisher) published() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

func TestDecode(t *testing.T) {
	data, err := json.Marshal(SearchEvent{Type: EventSearch, QueryID: "q-1", Query: "mord", Returned: 2})
	require.NoError(t, err)
	event, err := Decode(data)
	require.NoError(t, err)
	search, ok := event.(SearchEvent)
	require.True(t, ok)
	assert.Equal(t, "q-1", search.QueryID)

	data, err = json.Marshal(FeedbackEvent{Type: EventFeedback, QueryID: "q-1", ResultID: 1, Rating: "helpful"})
	require.NoError(t, err)
	event, err = Decode(data)
	require.NoError(t, err)
	assert.IsType(t, FeedbackEvent{}, event)

	_, err = Decode([]byte(`{"type":"index_document"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestAggregator_Stats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Query: "mord", Returned: 3, LatencyMs: 10})
	agg.Record(SearchEvent{Type: EventSearch, Query: "mord", Returned: 3, LatencyMs: 20, CacheHit: true})
	agg.Record(SearchEvent{Type: EventZeroResult, Query: "quantenphysik", LatencyMs: 5})
	agg.Record(FeedbackEvent{Type: EventFeedback, Rating: "helpful"})
	agg.Record(FeedbackEvent{Type: EventFeedback, Rating: "unrelated"})
	agg.Record(FeedbackEvent{Type: EventFeedback, Rating: "helpful"})

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(3), stats.FeedbackTotal)
	assert.Equal(t, int64(2), stats.HelpfulCount)
	assert.Equal(t, int64(1), stats.UnrelatedCount)
	assert.InDelta(t, 35.0/3.0, stats.AvgLatencyMs, 1e-9)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "mord", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "quantenphysik", Count: 1}}, stats.ZeroResultQueries)
}

func TestAggregator_HandlerSkipsBadMessages(t *testing.T) {
	agg := NewAggregator()
	h := agg.Handler()
	assert.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`garbage`)}))
	assert.NoError(t, h(context.Background(), kafka.Message{Type: "bogus", Value: []byte(`{}`)}))

	data, err := json.Marshal(SearchEvent{Type: EventSearch, Query: "raub", Returned: 1})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), kafka.Message{Key: "q", Value: data}))
	require.NoError(t, h(context.Background(), kafka.Message{Key: "q", Type: string(EventSearch), Value: data}))
	assert.Equal(t, int64(2), agg.Stats().TotalSearches)
}

func TestAggregator_Restore(t *testing.T) {
	agg := NewAggregator()
	agg.Restore(AggregatedStats{
		TotalSearches: 10,
		HelpfulCount:  4,
		TopQueries:    []QueryCount{{Query: "betrug", Count: 7}},
	})
	agg.Record(SearchEvent{Type: EventSearch, Query: "betrug", Returned: 1})

	stats := agg.Stats()
	assert.Equal(t, int64(11), stats.TotalSearches)
	assert.Equal(t, int64(4), stats.HelpfulCount)
	assert.Equal(t, int64(8), stats.TopQueries[0].Count)
}

func TestPercentile(t *testing.T) {
	sorted := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, int64(6), percentile(sorted, 50))
	assert.Equal(t, int64(10), percentile(sorted, 99))
	assert.Equal(t, int64(0), percentile(nil, 50))
}

func TestCollector_PublishesOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 10, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(SearchEvent{Type: EventSearch, QueryID: "q-1"})
	c.Track(FeedbackEvent{Type: EventFeedback, QueryID: "q-1"})
	cancel()
	c.Close()

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, "q-1", events[0].Key)
	assert.Equal(t, "search", events[0].Type)
	assert.Equal(t, "q-1", events[1].Key)
	assert.Equal(t, "feedback", events[1].Type)
}

func TestCollector_FlushesFullBatch(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 10, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(SearchEvent{QueryID: "a"})
	c.Track(SearchEvent{QueryID: "b"})
	assert.Eventually(t, func() bool { return len(pub.published()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollector_DropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1, 10, time.Hour)
	c.Track(SearchEvent{QueryID: "a"})
	c.Track(SearchEvent{QueryID: "b"})
	assert.Equal(t, int64(1), c.Dropped())
	c.Close()
}

func TestCollector_PublishErrorIsNotFatal(t *testing.T) {
	pub := &fakePublisher{fail: errors.New("broker down")}
	c := NewCollector(pub, 10, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(SearchEvent{QueryID: "a"})
	cancel()
	c.Close()
	assert.Empty(t, pub.published())
}

type fakeSnapshots struct {
	snaps []AggregatedStats
	err   error
	limit int
}

func (f *fakeSnapshots) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snaps, f.err
}

func TestHandler_Stats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Query: "mord", Returned: 1})
	h := NewHandler(agg, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}

func TestHandler_Snapshots(t *testing.T) {
	store := &fakeSnapshots{snaps: []AggregatedStats{{TotalSearches: 5}}}
	h := NewHandler(NewAggregator(), store)

	rec := httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/snapshots?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, store.limit)

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/snapshots?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	NewHandler(NewAggregator(), nil).Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/snapshots", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
