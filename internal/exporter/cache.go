// Package exporter provides caching functionality for RQ job counts.
package exporter

import (
	"time"

	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/patrickmn/go-cache"
)

// JobsCache keeps per-queue job counts across scrapes for a bounded time.
// It wraps patrickmn/go-cache; entries are keyed by Redis target so that a
// reconnect to another server never serves stale counts.
//
// Counting jobs issues one LLEN and five ZCARD per queue. Deployments with
// many queues and frequent scrapes can trade freshness for load by setting a
// TTL. Worker stats are never cached.
//
// A JobsCache built with a TTL <= 0 is disabled: Get always misses and Set
// does nothing. All methods are safe for concurrent use.
type JobsCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewJobsCache creates a cache with the given TTL. Cleanup runs every 2x TTL.
func NewJobsCache(ttl time.Duration) *JobsCache {
	if ttl <= 0 {
		return &JobsCache{}
	}
	return &JobsCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

// Enabled reports whether counts are cached at all.
func (jc *JobsCache) Enabled() bool {
	return jc.cache != nil
}

// Get returns the cached counts for target. Returns nil, false on a miss.
func (jc *JobsCache) Get(target string) (map[string]models.JobCounts, bool) {
	if !jc.Enabled() {
		return nil, false
	}
	if cached, found := jc.cache.Get(target); found {
		return cached.(map[string]models.JobCounts), true
	}
	return nil, false
}

// Set stores counts for target with the default TTL.
func (jc *JobsCache) Set(target string, stats map[string]models.JobCounts) {
	if !jc.Enabled() {
		return
	}
	jc.cache.Set(target, stats, cache.DefaultExpiration)
}

// TTL returns the configured TTL, 0 when disabled.
func (jc *JobsCache) TTL() time.Duration {
	return jc.ttl
}

// Flush drops every cached entry. Called on config reload.
func (jc *JobsCache) Flush() {
	if jc.Enabled() {
		jc.cache.Flush()
	}
}
