package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/fixrouter/gateway/pkg/cache"
)

// CachedResolver wraps Config.RouteBySenderTarget with a cache so repeated
// lookups of the legacy sender/target fallback path (§4.6 point 4, §9's open
// question) don't rescan the route table on every record. A cache miss
// always falls through to the table scan; the result (including "not
// found") is cached for ttl.
type CachedResolver struct {
	cfg   *Config
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedResolver(cfg *Config, c cache.Cache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{cfg: cfg, cache: c, ttl: ttl}
}

type cachedLookup struct {
	RouteID string
	Found   bool
}

// Resolve returns the route matching (sender, target, dir), preferring the
// cache and logging nothing itself — callers that take this legacy path are
// expected to log per §9.
func (r *CachedResolver) Resolve(ctx context.Context, sender, target string, dir Direction) (*Route, bool) {
	key := cacheKey(sender, target, dir)

	var cached cachedLookup
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		if !cached.Found {
			return nil, false
		}
		if route, ok := r.cfg.RouteByID(cached.RouteID); ok {
			return route, true
		}
	}

	route, found := r.cfg.RouteBySenderTarget(sender, target, dir)
	lookup := cachedLookup{Found: found}
	if found {
		lookup.RouteID = route.RouteID
	}
	_ = r.cache.Set(ctx, key, lookup, r.ttl)

	return route, found
}

func cacheKey(sender, target string, dir Direction) string {
	return fmt.Sprintf("route-resolve:%s:%s:%s", sender, target, dir)
}
