// Package scorer computes BM25F relevance between a normalised query and an
// indexed provision. Title matches are weighted above body matches, and the
// inverse document frequency makes rare query terms dominate common ones.
package scorer

import (
	"math"

	"github.com/gesetzesinfo/lawsearch/internal/indexer/index"
	"github.com/gesetzesinfo/lawsearch/internal/searcher/query"
)

// Params are the BM25F tuning constants.
type Params struct {
	K1          float64
	B           float64
	TitleWeight float64
}

func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75, TitleWeight: 3}
}

// Stats are the corpus-wide figures scoring depends on.
type Stats interface {
	TotalDocs() int
	AvgDocLength() float64
	DocFreq(term string) int
}

type Scorer struct {
	params Params
	stats  Stats
}

// New fills zero-valued params from DefaultParams.
func New(stats Stats, params Params) *Scorer {
	d := DefaultParams()
	if params.K1 <= 0 {
		params.K1 = d.K1
	}
	if params.B < 0 || params.B > 1 {
		params.B = d.B
	}
	if params.TitleWeight <= 0 {
		params.TitleWeight = d.TitleWeight
	}
	return &Scorer{params: params, stats: stats}
}

// Score returns a value >= 0. A provision sharing no term with q scores
// exactly 0; any shared term contributes a strictly positive amount.
func (s *Scorer) Score(q *query.Normalized, doc index.DocStats) float64 {
	if q == nil || len(q.Terms) == 0 || len(doc.Terms) == 0 {
		return 0
	}
	n := s.stats.TotalDocs()
	avgLen := s.stats.AvgDocLength()
	var score float64
	for _, term := range q.Terms {
		p, ok := doc.Terms[term]
		if !ok {
			continue
		}
		wtf := s.params.TitleWeight*float64(p.TitleFreq) + float64(p.BodyFreq)
		score += IDF(n, s.stats.DocFreq(term)) * s.saturate(wtf, float64(doc.DocLen), avgLen)
	}
	return score
}

// IDF is the BM25 inverse document frequency with the +1 inside the log,
// which keeps it positive even for terms present in every provision.
func IDF(totalDocs, docFreq int) float64 {
	return math.Log(1 + (float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
}

func (s *Scorer) saturate(wtf, docLen, avgLen float64) float64 {
	if wtf == 0 {
		return 0
	}
	norm := 1.0
	if avgLen > 0 {
		norm = 1 - s.params.B + s.params.B*docLen/avgLen
	}
	return wtf * (s.params.K1 + 1) / (wtf + s.params.K1*norm)
}
