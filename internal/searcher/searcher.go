// Package searcher orchestrates a search: it normalises the raw query, scores
// candidate provisions, ranks them, assigns the query id that clients thread
// back into ratings, and records which provisions were issued under it.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gesetzesinfo/lawsearch/internal/analytics"
	"github.com/gesetzesinfo/lawsearch/internal/corpus"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/cache"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/query"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/ranker"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/scorer"
	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
	"github.com/gesetzesinfo/lawsearch/pkg/logger"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
	"github.com/gesetzesinfo/lawsearch/pkg/tracing"
)

// Strategy selects how candidates are gathered.
type Strategy string

const (
	// StrategyIndex scores only provisions found in the inverted index.
	StrategyIndex Strategy = "index"
	// StrategyScan scores every provision in the corpus.
	StrategyScan Strategy = "scan"
)

// Registry remembers which provisions were issued under a query id so
// feedback can be validated later.
type Registry interface {
	Issue(ctx context.Context, queryID string, provisionIDs []int64) error
}

// Tracker receives analytics events. Implementations must not block.
type Tracker interface {
	Track(event any)
}

type Config struct {
	Strategy   Strategy
	MaxResults int
	Scoring    scorer.Params
	Tracing    bool
}

// Hit is one ranked provision as returned to clients. ID is the result id,
// the value clients pass back when rating.
type Hit struct {
	ID          int     `json:"id"`
	ProvisionID int64   `json:"provision_id"`
	BookCode    string  `json:"book_code"`
	Title       string  `json:"title"`
	Text        string  `json:"text"`
	SourceURL   string  `json:"source_url"`
	Score       float64 `json:"score"`
}

type Response struct {
	QueryID  string `json:"query_id"`
	Query    string `json:"query"`
	Total    int    `json:"total"`
	Results  []Hit  `json:"results"`
	CacheHit bool   `json:"-"`
}

type Service struct {
	store    *corpus.Store
	scorer   *scorer.Scorer
	cache    *cache.QueryCache
	registry Registry
	tracker  Tracker
	metrics  *metrics.Metrics
	cfg      Config
	logger   *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithCache serves rankings through c.
func WithCache(c *cache.QueryCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTracker publishes a SearchEvent per search.
func WithTracker(t Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store *corpus.Store, registry Registry, cfg Config, opts ...Option) *Service {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = ranker.DefaultLimit
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyIndex
	}
	s := &Service{
		store:    store,
		scorer:   scorer.New(store, cfg.Scoring),
		registry: registry,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.metrics.CorpusProvisions.Set(float64(store.Count()))
		s.metrics.CorpusTerms.Set(float64(store.TermCount()))
	}
	s.logger.Info("search service ready",
		"provisions", store.Count(),
		"terms", store.TermCount(),
		"strategy", cfg.Strategy,
		"max_results", cfg.MaxResults,
		"cache", s.cache != nil,
	)
	return s
}

// Search runs raw against the corpus. It fails with ErrEmptyQuery for blank
// input and ErrNoResults when nothing scores above zero; in the latter case
// no query id is registered.
func (s *Service) Search(ctx context.Context, raw string) (*Response, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "search")
	defer func() {
		if span != nil {
			span.End()
			span.Log(ctx)
		}
	}()

	q, err := query.Normalize(raw)
	if err != nil {
		s.observe("rejected", "none", start, 0)
		return nil, err
	}
	queryID := uuid.NewString()
	if span != nil {
		span.SetAttr("query_id", queryID)
		span.SetAttr("terms", len(q.Terms))
	}

	results, cacheHit, err := s.rank(ctx, q)
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	} else if s.cache == nil {
		cacheStatus = "disabled"
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNoResults) {
			s.observe("zero_result", cacheStatus, start, 0)
			s.track(ctx, q, queryID, 0, cacheHit, start)
			return nil, err
		}
		s.observe("error", cacheStatus, start, 0)
		return nil, fmt.Errorf("ranking query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	issued := make([]int64, 0, len(results))
	for _, r := range results {
		p, ok := s.store.Get(r.ProvisionID)
		if !ok {
			return nil, fmt.Errorf("ranked provision %d missing from corpus: %w", r.ProvisionID, apperrors.ErrInternal)
		}
		hits = append(hits, Hit{
			ID:          r.ResultID,
			ProvisionID: p.ID,
			BookCode:    p.BookCode,
			Title:       p.Title,
			Text:        p.Text,
			SourceURL:   p.SourceURL,
			Score:       r.Score,
		})
		issued = append(issued, p.ID)
	}
	if err := s.registry.Issue(ctx, queryID, issued); err != nil {
		s.observe("error", cacheStatus, start, 0)
		return nil, fmt.Errorf("registering query %s: %w", queryID, err)
	}

	s.observe("hit", cacheStatus, start, len(hits))
	s.track(ctx, q, queryID, len(hits), cacheHit, start)
	logger.FromContext(ctx).Debug("search executed",
		"query_id", queryID,
		"terms", q.Terms,
		"results", len(hits),
		"cache_hit", cacheHit,
		"strategy", s.cfg.Strategy,
	)
	return &Response{
		QueryID:  queryID,
		Query:    q.Text,
		Total:    len(hits),
		Results:  hits,
		CacheHit: cacheHit,
	}, nil
}

// ProvisionCount is the number of provisions in the corpus.
func (s *Service) ProvisionCount() int {
	return s.store.Count()
}

// TermCount is the vocabulary size of the index.
func (s *Service) TermCount() int {
	return s.store.TermCount()
}

func (s *Service) rank(ctx context.Context, q *query.Normalized) ([]ranker.Result, bool, error) {
	if len(q.Terms) == 0 {
		_, err := ranker.Rank(nil, s.cfg.MaxResults)
		return nil, false, err
	}
	compute := func() ([]ranker.Result, error) {
		_, span := s.startSpan(ctx, "score")
		candidates := s.score(q)
		if span != nil {
			span.SetAttr("candidates", len(candidates))
			span.End()
		}
		return ranker.Rank(candidates, s.cfg.MaxResults)
	}
	if s.cache == nil {
		results, err := compute()
		return results, false, err
	}
	return s.cache.GetOrCompute(ctx, q.Terms, s.cfg.MaxResults, compute)
}

// score gathers candidates per the configured strategy. Both strategies
// yield the same ranking: provisions outside the index lookup score 0.
func (s *Service) score(q *query.Normalized) []ranker.Candidate {
	if s.cfg.Strategy == StrategyScan {
		candidates := make([]ranker.Candidate, 0, s.store.Count())
		for doc := range s.store.Documents() {
			candidates = append(candidates, ranker.Candidate{
				ProvisionID: doc.DocID,
				Score:       s.scorer.Score(q, doc),
			})
		}
		return candidates
	}

	ids := s.store.Candidates(q.Terms)
	candidates := make([]ranker.Candidate, 0, len(ids))
	for _, id := range ids {
		doc, ok := s.store.Document(id)
		if !ok {
			continue
		}
		candidates = append(candidates, ranker.Candidate{
			ProvisionID: id,
			Score:       s.scorer.Score(q, doc),
		})
	}
	return candidates
}

func (s *Service) observe(outcome, cacheStatus string, start time.Time, results int) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if outcome == "hit" || outcome == "zero_result" {
		s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
		s.metrics.SearchResultsCount.Observe(float64(results))
	}
}

func (s *Service) track(ctx context.Context, q *query.Normalized, queryID string, returned int, cacheHit bool, start time.Time) {
	if s.tracker == nil {
		return
	}
	eventType := analytics.EventSearch
	if returned == 0 {
		eventType = analytics.EventZeroResult
	}
	s.tracker.Track(analytics.SearchEvent{
		Type:      eventType,
		QueryID:   queryID,
		Query:     q.Text,
		Terms:     q.Terms,
		Returned:  returned,
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	})
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, *tracing.Span) {
	if !s.cfg.Tracing {
		return ctx, nil
	}
	return tracing.Start(ctx, name)
}
