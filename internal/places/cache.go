// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package places

import (
	"context"
	"math"
	"sync"
	"time"
)

// coordPrecision is the precision used to quantize coordinates (0.0001 degrees ≈ 11 m)
const coordPrecision = 1e-4

type cacheKey struct {
	Provider string
	Type     string
	Language string
	LatQ     int32
	LonQ     int32
}

type cacheEntry struct {
	Response Response
	Expiry   time.Time
}

// CachedFinder wraps a Finder and caches definitive answers per quantized coordinate. OK responses
// are kept for ttlHit, ZERO_RESULTS for ttlMiss. Errors and other statuses are never cached.
type CachedFinder struct {
	finder  Finder
	ttlHit  time.Duration
	ttlMiss time.Duration

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewCachedFinder(finder Finder, ttlHit, ttlMiss time.Duration) *CachedFinder {
	return &CachedFinder{
		finder:  finder,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		cache:   make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedFinder) Name() string {
	return "places cache using " + c.finder.Name()
}

func (c *CachedFinder) NearbySearch(ctx context.Context, req Request) (Response, error) {
	key := c.newKey(req)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.Expiry) {
		resp := entry.Response
		resp.CacheHit = true
		return resp, nil
	}

	resp, err := c.finder.NearbySearch(ctx, req)
	if err != nil {
		return resp, err
	}

	var ttl time.Duration
	switch resp.Status {
	case StatusOK:
		ttl = c.ttlHit
	case StatusZeroResults:
		ttl = c.ttlMiss
	default:
		return resp, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{
		Response: resp,
		Expiry:   time.Now().Add(ttl),
	}
	c.evictExpired()

	return resp, nil
}

// evictExpired drops stale entries. The caller must hold the write lock.
func (c *CachedFinder) evictExpired() {
	now := time.Now()
	for k, e := range c.cache {
		if now.After(e.Expiry) {
			delete(c.cache, k)
		}
	}
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func (c *CachedFinder) newKey(req Request) cacheKey {
	return cacheKey{
		Provider: c.finder.Name(),
		Type:     req.Type,
		Language: req.Language.String(),
		LatQ:     quantizeCoord(req.Location.Lat),
		LonQ:     quantizeCoord(req.Location.Lon),
	}
}
