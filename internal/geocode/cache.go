package geocode

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/signalsfoundry/globe-poi/model"
)

// CachedResolver memoises successful lookups. Coordinates are keyed at four
// decimals, the precision the selection modal shows (about 11 m).
type CachedResolver struct {
	next  Resolver
	cache *lru.Cache[string, Address]

	// OnHit, when set, runs on every cache hit.
	OnHit func()
}

// NewCachedResolver wraps next with an LRU of the given size.
func NewCachedResolver(next Resolver, size int) (*CachedResolver, error) {
	cache, err := lru.New[string, Address](size)
	if err != nil {
		return nil, fmt.Errorf("geocode: cache: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

func cacheKey(loc model.GeoCoordinate) string {
	return fmt.Sprintf("%.4f,%.4f", loc.Lat, loc.Lon)
}

// Reverse implements Resolver. Failures are not cached.
func (c *CachedResolver) Reverse(ctx context.Context, loc model.GeoCoordinate) (Address, error) {
	key := cacheKey(loc)
	if addr, ok := c.cache.Get(key); ok {
		if c.OnHit != nil {
			c.OnHit()
		}
		addr.CacheHit = true
		return addr, nil
	}
	addr, err := c.next.Reverse(ctx, loc)
	if err != nil {
		return Address{}, err
	}
	c.cache.Add(key, addr)
	return addr, nil
}

// Len reports the number of cached entries.
func (c *CachedResolver) Len() int {
	return c.cache.Len()
}
