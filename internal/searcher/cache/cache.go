// Package cache memoises ranked result lists in Redis. Keys are derived from
// the normalised query terms, the result limit and the corpus version, so a
// changed corpus never serves stale rankings. Concurrent misses for one key
// are collapsed with singleflight, and a circuit breaker takes Redis out of
// the request path while it is failing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gesetzesinfo/lawsearch/internal/searcher/ranker"
	"github.com/gesetzesinfo/lawsearch/pkg/metrics"
	pkgredis "github.com/gesetzesinfo/lawsearch/pkg/redis"
	"github.com/gesetzesinfo/lawsearch/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	version string
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache namespaced by corpusVersion. m may be nil.
func New(backend Backend, ttl time.Duration, corpusVersion string, m *metrics.Metrics) *QueryCache {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
	if m != nil {
		cbCfg.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		version: corpusVersion,
		breaker: resilience.NewCircuitBreaker("result-cache", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, terms []string, limit int) ([]ranker.Result, bool) {
	key := c.buildKey(terms, limit)
	var data string
	err := c.breaker.Execute(func() error {
		v, err := c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		data = v
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var results []ranker.Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, terms []string, limit int, results []ranker.Result) {
	key := c.buildKey(terms, limit)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached ranking for terms, or runs compute once
// per key across concurrent callers and caches its result. Errors from
// compute, including ErrNoResults, are returned and not cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	terms []string,
	limit int,
	compute func() ([]ranker.Result, error),
) ([]ranker.Result, bool, error) {
	if results, ok := c.Get(ctx, terms, limit); ok {
		return results, true, nil
	}
	key := c.buildKey(terms, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, terms, limit, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.Result), false, nil
}

// Invalidate removes every cached ranking regardless of corpus version.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// buildKey ignores term order: the score is a sum over terms.
func (c *QueryCache) buildKey(terms []string, limit int) string {
	sorted := slices.Clone(terms)
	slices.Sort(sorted)
	raw := fmt.Sprintf("%s|%s|limit=%d", c.version, strings.Join(sorted, ","), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, c.version, hash[:16])
}
