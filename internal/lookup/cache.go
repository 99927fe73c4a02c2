package lookup

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is the default lifetime of a cached lookup result.
const DefaultCacheTTL = 10 * time.Minute

// Cached wraps a Matcher with a TTL cache. Concurrent identical queries
// share one upstream request. Errors are not cached.
type Cached struct {
	matcher Matcher
	name    string
	cache   *ttlcache.Cache[string, []Match]
	sfGroup singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	sfHits atomic.Uint64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Name   string
	Hits   uint64
	Misses uint64
	Shared uint64
	Size   int
}

// NewCached wraps m. name separates the key space of matchers that share
// queries, such as two Marple strategies.
func NewCached(m Matcher, name string, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache := ttlcache.New[string, []Match](
		ttlcache.WithTTL[string, []Match](ttl),
	)
	go cache.Start()
	return &Cached{matcher: m, name: name, cache: cache}
}

func (c *Cached) Match(ctx context.Context, query string) ([]Match, error) {
	key := c.cacheKey(query)
	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		slog.Debug("Lookup cache hit", "matcher", c.name, "query", query)
		return item.Value(), nil
	}

	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		matches, err := c.matcher.Match(ctx, query)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, matches, ttlcache.DefaultTTL)
		return matches, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.sfHits.Add(1)
	}
	return result.([]Match), nil
}

func (c *Cached) cacheKey(query string) string {
	h := xxhash.New()
	_, _ = h.WriteString(c.name)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(query)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return string(buf[:])
}

// Stats returns the cache counters.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Name:   c.name,
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.sfHits.Load(),
		Size:   c.cache.Len(),
	}
}

// Close stops the expiry loop and logs the final counters.
func (c *Cached) Close() {
	c.cache.Stop()
	s := c.Stats()
	slog.Debug("Lookup cache closed", "matcher", s.Name, "hits", s.Hits, "misses", s.Misses, "shared", s.Shared)
}
