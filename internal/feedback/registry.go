package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	pkgredis "github.com/gesetzesinfo/lawsearch/pkg/redis"
)

// DefaultIssuedTTL is how long an issued query stays rateable.
const DefaultIssuedTTL = 24 * time.Hour

// Registry remembers, per issued query id, the provision behind each result
// id. Lookup fails with ErrUnknownReference for ids never issued or expired.
type Registry interface {
	Issue(ctx context.Context, queryID string, provisionIDs []int64) error
	Lookup(ctx context.Context, queryID string) ([]int64, error)
}

type issuedQuery struct {
	provisions []int64
	expiresAt  time.Time
}

// MemoryRegistry keeps issued queries in process memory.
type MemoryRegistry struct {
	mu     sync.RWMutex
	issued map[string]issuedQuery
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = DefaultIssuedTTL
	}
	return &MemoryRegistry{
		issued: make(map[string]issuedQuery),
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default().With("component", "issued-registry"),
	}
}

func (r *MemoryRegistry) Issue(_ context.Context, queryID string, provisionIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[queryID] = issuedQuery{
		provisions: slices.Clone(provisionIDs),
		expiresAt:  r.now().Add(r.ttl),
	}
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, queryID string) ([]int64, error) {
	r.mu.RLock()
	q, ok := r.issued[queryID]
	r.mu.RUnlock()
	if !ok || !r.now().Before(q.expiresAt) {
		return nil, unknownReference("query %s was not issued or has expired", queryID)
	}
	return q.provisions, nil
}

// Sweep drops expired entries and returns how many were removed.
func (r *MemoryRegistry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, q := range r.issued {
		if !now.Before(q.expiresAt) {
			delete(r.issued, id)
			removed++
		}
	}
	return removed
}

// Len is the number of retained entries, expired or not.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.issued)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *MemoryRegistry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("expired queries swept", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

const issuedKeyPrefix = "issued:"

// KV is the subset of the Redis client the Redis registry uses.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisRegistry shares issued queries between searcher replicas. Expiry is
// delegated to the Redis key TTL.
type RedisRegistry struct {
	kv  KV
	ttl time.Duration
}

func NewRedisRegistry(kv KV, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultIssuedTTL
	}
	return &RedisRegistry{kv: kv, ttl: ttl}
}

func (r *RedisRegistry) Issue(ctx context.Context, queryID string, provisionIDs []int64) error {
	data, err := json.Marshal(provisionIDs)
	if err != nil {
		return fmt.Errorf("encoding issued provisions: %w", err)
	}
	if err := r.kv.Set(ctx, issuedKeyPrefix+queryID, data, r.ttl); err != nil {
		return fmt.Errorf("storing issued query %s: %w", queryID, err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, queryID string) ([]int64, error) {
	data, err := r.kv.Get(ctx, issuedKeyPrefix+queryID)
	if pkgredis.IsNilError(err) {
		return nil, unknownReference("query %s was not issued or has expired", queryID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading issued query %s: %w", queryID, err)
	}
	var ids []int64
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("decoding issued query %s: %w", queryID, err)
	}
	return ids, nil
}
