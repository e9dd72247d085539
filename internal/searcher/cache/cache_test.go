package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gesetzesinfo/lawsearch/internal/searcher/ranker"
	apperrors "github.com/gesetzesinfo/lawsearch/pkg/errors"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
)

type fakeBackend struct {
	mu   sync.Mutex
	data map[string]string
	fail error
	gets atomic.Int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string]string)}
}

func (f *fakeBackend) Get(_ context.Context, key string) (string, error) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.data[key] = string(value.([]byte))
	return nil
}

func (f *fakeBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

var ranked = []ranker.Result{{ResultID: 1, ProvisionID: 3, Score: 1.5}}

func TestGetOrCompute_CachesResult(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(newFakeBackend(), time.Minute, "v1", m)
	ctx := context.Background()

	calls := 0
	compute := func() ([]ranker.Result, error) {
		calls++
		return ranked, nil
	}

	got, hit, err := c.GetOrCompute(ctx, []string{"diebstahl"}, 20, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, ranked, got)

	got, hit, err = c.GetOrCompute(ctx, []string{"diebstahl"}, 20, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, ranked, got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestGetOrCompute_DoesNotCacheErrors(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, "v1", nil)
	ctx := context.Background()

	calls := 0
	compute := func() ([]ranker.Result, error) {
		calls++
		return nil, apperrors.ErrNoResults
	}
	for i := 0; i < 2; i++ {
		_, _, err := c.GetOrCompute(ctx, []string{"zzz"}, 20, compute)
		assert.ErrorIs(t, err, apperrors.ErrNoResults)
	}
	assert.Equal(t, 2, calls)
}

func TestBuildKey(t *testing.T) {
	c := New(newFakeBackend(), time.Minute, "v1", nil)
	assert.Equal(t, c.buildKey([]string{"a", "b"}, 20), c.buildKey([]string{"b", "a"}, 20))
	assert.NotEqual(t, c.buildKey([]string{"a"}, 20), c.buildKey([]string{"a"}, 10))

	other := New(newFakeBackend(), time.Minute, "v2", nil)
	assert.NotEqual(t, c.buildKey([]string{"a"}, 20), other.buildKey([]string{"a"}, 20))
}

func TestGetOrCompute_BackendFailureFallsThrough(t *testing.T) {
	backend := newFakeBackend()
	backend.fail = errors.New("connection refused")
	c := New(backend, time.Minute, "v1", nil)

	for i := 0; i < 10; i++ {
		got, hit, err := c.GetOrCompute(context.Background(), []string{"mord"}, 20, func() ([]ranker.Result, error) {
			return ranked, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, ranked, got)
	}
	assert.Less(t, backend.gets.Load(), int64(10), "breaker should stop calling a failing backend")
}

func TestInvalidate(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend, time.Minute, "v1", nil)
	ctx := context.Background()
	c.Set(ctx, []string{"mord"}, 20, ranked)
	require.Len(t, backend.data, 1)

	require.NoError(t, c.Invalidate(ctx))
	assert.Empty(t, backend.data)
}
