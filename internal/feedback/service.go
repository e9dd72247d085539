package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/gesetzesinfo/lawsearch/internal/analytics"
	"github.com/gesetzesinfo/lawsearch/pkg/logger"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
)

// Tracker receives analytics events. Implementations must not block.
type Tracker interface {
	Track(event any)
}

type Service struct {
	registry Registry
	store    Store
	tracker  Tracker
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService wires the registry and store. tracker and m may be nil.
func NewService(registry Registry, store Store, tracker Tracker, m *metrics.Metrics) *Service {
	return &Service{
		registry: registry,
		store:    store,
		tracker:  tracker,
		metrics:  m,
		now:      time.Now,
	}
}

// Record stores rating for the result resultID of query queryID. It fails
// with ErrUnknownReference when the query was never issued, has expired, or
// had fewer than resultID results. Recording the same pair again replaces
// the earlier rating.
func (s *Service) Record(ctx context.Context, queryID string, resultID int, rating Rating) (Feedback, error) {
	provisions, err := s.registry.Lookup(ctx, queryID)
	if err != nil {
		s.count(rating, "rejected")
		return Feedback{}, err
	}
	if resultID < 1 || resultID > len(provisions) {
		s.count(rating, "rejected")
		return Feedback{}, unknownReference("result %d is out of range for query %s (1..%d)",
			resultID, queryID, len(provisions))
	}

	fb := Feedback{
		QueryID:     queryID,
		ResultID:    resultID,
		ProvisionID: provisions[resultID-1],
		Rating:      rating,
		RecordedAt:  s.now().UTC(),
	}
	if err := s.store.Upsert(ctx, fb); err != nil {
		s.count(rating, "error")
		return Feedback{}, fmt.Errorf("recording feedback: %w", err)
	}
	s.count(rating, "recorded")

	if s.tracker != nil {
		s.tracker.Track(analytics.FeedbackEvent{
			Type:        analytics.EventFeedback,
			QueryID:     fb.QueryID,
			ResultID:    fb.ResultID,
			ProvisionID: fb.ProvisionID,
			Rating:      string(fb.Rating),
			Timestamp:   fb.RecordedAt,
			RequestID:   logger.RequestID(ctx),
		})
	}
	logger.FromContext(ctx).Debug("feedback recorded",
		"query_id", queryID,
		"result_id", resultID,
		"provision_id", fb.ProvisionID,
		"rating", rating,
	)
	return fb, nil
}

func (s *Service) Get(ctx context.Context, queryID string, resultID int) (Feedback, bool, error) {
	return s.store.Get(ctx, queryID, resultID)
}

func (s *Service) ListByQuery(ctx context.Context, queryID string) ([]Feedback, error) {
	return s.store.ListByQuery(ctx, queryID)
}

// Tally is the read contract for re-ranking.
func (s *Service) Tally(ctx context.Context, provisionID int64) (Tally, error) {
	return s.store.Tally(ctx, provisionID)
}

func (s *Service) count(rating Rating, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.FeedbackTotal.WithLabelValues(string(rating), outcome).Inc()
}
