package ranker

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
)

func TestRank_OrdersAndNumbers(t *testing.T) {
	results, err := Rank([]Candidate{
		{ProvisionID: 1, Score: 0.5},
		{ProvisionID: 2, Score: 2.0},
		{ProvisionID: 3, Score: 1.0},
	}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []int64{2, 3, 1}, []int64{results[0].ProvisionID, results[1].ProvisionID, results[2].ProvisionID})
	for i, r := range results {
		assert.Equal(t, i+1, r.ResultID)
	}
}

func TestRank_TiesBrokenByProvisionID(t *testing.T) {
	results, err := Rank([]Candidate{
		{ProvisionID: 9, Score: 1},
		{ProvisionID: 4, Score: 1},
		{ProvisionID: 7, Score: 1},
	}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(4), results[0].ProvisionID)
	assert.Equal(t, int64(7), results[1].ProvisionID)
}

func TestRank_Cutoff(t *testing.T) {
	results, err := Rank([]Candidate{
		{ProvisionID: 1, Score: 0},
		{ProvisionID: 2, Score: -1},
		{ProvisionID: 3, Score: math.NaN()},
		{ProvisionID: 4, Score: 0.1},
	}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(4), results[0].ProvisionID)
}

func TestRank_NoResults(t *testing.T) {
	_, err := Rank(nil, 10)
	assert.ErrorIs(t, err, apperrors.ErrNoResults)

	_, err = Rank([]Candidate{{ProvisionID: 1, Score: 0}}, 10)
	assert.ErrorIs(t, err, apperrors.ErrNoResults)
}

func TestRank_DefaultLimit(t *testing.T) {
	candidates := make([]Candidate, 50)
	for i := range candidates {
		candidates[i] = Candidate{ProvisionID: int64(i + 1), Score: float64(i + 1)}
	}
	results, err := Rank(candidates, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultLimit)
	assert.Equal(t, int64(50), results[0].ProvisionID)
}

func TestRank_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	candidates := make([]Candidate, 500)
	for i := range candidates {
		candidates[i] = Candidate{ProvisionID: int64(i + 1), Score: float64(rng.Intn(20))}
	}
	results, err := Rank(candidates, 25)
	require.NoError(t, err)
	require.Len(t, results, 25)

	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b Candidate) int {
		if better(a, b) {
			return -1
		}
		if better(b, a) {
			return 1
		}
		return 0
	})
	for i, r := range results {
		assert.Equal(t, sorted[i].ProvisionID, r.ProvisionID)
	}
	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		assert.GreaterOrEqual(t, prev.Score, cur.Score)
		if prev.Score == cur.Score {
			assert.Less(t, prev.ProvisionID, cur.ProvisionID)
		}
		assert.Equal(t, i+1, cur.ResultID)
	}
}

func BenchmarkRank(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	candidates := make([]Candidate, 10000)
	for i := range candidates {
		candidates[i] = Candidate{ProvisionID: int64(i), Score: rng.Float64()}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Rank(candidates, DefaultLimit)
	}
}
