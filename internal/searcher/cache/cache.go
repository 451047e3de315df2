// Package cache memoises search results in Redis. Keys carry the index
// generation, so a newly activated generation never sees results computed
// against an older one; stale entries simply age out.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
)

const keyPrefix = "search:"

// Backend is the key-value surface the cache needs; *pkgredis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
}

var _ Backend = (*pkgredis.Client)(nil)

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Fetch returns the cached result for (generation, query, limit) or runs
// compute. Concurrent misses for the same key share one computation.
// Backend failures degrade to computing the result; they are never
// returned to the caller.
func (c *QueryCache) Fetch(
	ctx context.Context,
	generation uint64,
	query string,
	limit int,
	compute func(context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := BuildKey(generation, query, limit)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.errors.Add(1)
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	result.Cached = true
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Ping checks the backend for health reporting.
func (c *QueryCache) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

func (c *QueryCache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// BuildKey derives the cache key. query must be the canonical form of the
// parsed query so that equivalent spellings share an entry.
func BuildKey(generation uint64, query string, limit int) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%s\x00limit=%d", query, limit))
	return fmt.Sprintf("%sg%d:%x", keyPrefix, generation, hash[:16])
}
