package search

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/readyhouston/hdr/internal/lru"
	"github.com/readyhouston/hdr/internal/observability"
)

// CachedClient wraps a Searcher with an in-memory LRU cache keyed by the
// normalized query.
type CachedClient struct {
	inner   Searcher
	cache   *lru.Cache[string, *Response]
	metrics *observability.Metrics
}

// NewCachedClient creates a cache decorator around a searcher.
func NewCachedClient(inner Searcher, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedClient {
	return &CachedClient{
		inner:   inner,
		cache:   lru.New[string, *Response](maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedClient) Search(ctx context.Context, query string) *Response {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if resp, ok := c.cache.Get(key); ok {
		c.metrics.Search("cache_hit")
		return resp
	}
	resp := c.inner.Search(ctx, query)
	// Only cache successful lookups so transient failures are retried.
	if resp != nil {
		c.cache.Put(key, resp)
	}
	return resp
}

// Configured reports whether the wrapped searcher holds a credential.
// Searchers that do not say are assumed configured.
func (c *CachedClient) Configured() bool {
	if cf, ok := c.inner.(interface{ Configured() bool }); ok {
		return cf.Configured()
	}
	return true
}
