// Package ranker turns scored candidates into the ordered result list that is
// handed to clients: it applies the score cutoff, orders by score, truncates
// to the result limit and assigns query-scoped result ids.
package ranker

import (
	"container/heap"
	"math"
	"net/http"

	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

// DefaultLimit is used when Rank is called with limit <= 0.
const DefaultLimit = 20

// Candidate is a provision with its relevance score.
type Candidate struct {
	ProvisionID int64
	Score       float64
}

// Result is a ranked candidate. ResultID is its 1-based position.
type Result struct {
	ResultID    int     `json:"result_id"`
	ProvisionID int64   `json:"provision_id"`
	Score       float64 `json:"score"`
}

// Rank drops candidates scoring <= 0 (or NaN), orders the rest by score
// descending with ties broken by provision id ascending, keeps the best
// limit, and numbers them from 1. An empty outcome fails with ErrNoResults.
func Rank(candidates []Candidate, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	h := &minHeap{}
	for _, c := range candidates {
		if !(c.Score > 0) || math.IsInf(c.Score, 0) {
			continue
		}
		if h.Len() < limit {
			heap.Push(h, c)
			continue
		}
		if better((*h)[0], c) {
			continue
		}
		(*h)[0] = c
		heap.Fix(h, 0)
	}
	if h.Len() == 0 {
		return nil, apperrors.New(apperrors.ErrNoResults, http.StatusOK, "no provision matches the query")
	}

	results := make([]Result, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		c := heap.Pop(h).(Candidate)
		results[i] = Result{
			ResultID:    i + 1,
			ProvisionID: c.ProvisionID,
			Score:       c.Score,
		}
	}
	return results, nil
}

// better reports whether a ranks strictly ahead of b.
func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ProvisionID < b.ProvisionID
}

// minHeap keeps the worst retained candidate at the root.
type minHeap []Candidate

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) {
	*h = append(*h, x.(Candidate))
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
