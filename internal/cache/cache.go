// Package cache provides a short-TTL in-memory cache for the admin API's
// read endpoints, so a burst of GET /decisions or GET /field-stats polling
// doesn't recompute a fresh JSON snapshot on every request. Adapted from the
// teacher's internal/cache.go GetTiered/SetTiered — the Redis tier is
// dropped (see DESIGN.md: spec.md §5 pins a single-writer, in-process
// concurrency model with no multi-instance deployment to share a cache
// across), the in-process patrickmn/go-cache tier is kept verbatim in
// spirit.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Snapshot is a short-lived read cache keyed by string (e.g. "decisions",
// "field-stats").
type Snapshot struct {
	c *gocache.Cache
}

// New returns a Snapshot cache whose entries expire after ttl, swept every
// 2*ttl.
func New(ttl time.Duration) *Snapshot {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Snapshot{c: gocache.New(ttl, 2*ttl)}
}

// Get returns the cached value for key, if present and unexpired.
func (s *Snapshot) Get(key string) (interface{}, bool) {
	return s.c.Get(key)
}

// Set stores value under key using the cache's default expiration.
func (s *Snapshot) Set(key string, value interface{}) {
	s.c.SetDefault(key, value)
}

// Invalidate removes key, used after a flush changes decisions/stats.
func (s *Snapshot) Invalidate(key string) {
	s.c.Delete(key)
}
