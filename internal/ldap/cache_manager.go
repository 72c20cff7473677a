package ldap

import (
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is how long cached lookups stay valid.
const DefaultCacheTTL = 5 * time.Minute

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int64
	HitRate float64
}

// CacheManager caches identifier resolutions and search results across
// queries. It is safe for concurrent use. A nil *CacheManager is a valid,
// always-missing cache.
type CacheManager struct {
	cache  *gocache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCacheManager creates a cache whose items expire after ttl.
func NewCacheManager(ttl time.Duration) *CacheManager {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheManager{cache: gocache.New(ttl, 2*ttl)}
}

func (cm *CacheManager) get(key string) (any, bool) {
	if cm == nil {
		return nil, false
	}
	v, ok := cm.cache.Get(key)
	if ok {
		cm.hits.Add(1)
	} else {
		cm.misses.Add(1)
	}
	return v, ok
}

func (cm *CacheManager) set(key string, v any) {
	if cm == nil {
		return
	}
	cm.cache.Set(key, v, gocache.DefaultExpiration)
}

// GetDN returns the cached DN for an identifier.
func (cm *CacheManager) GetDN(identifier string) (string, bool) {
	v, ok := cm.get("dn:" + strings.ToLower(strings.TrimSpace(identifier)))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// PutDN records that identifier resolved to dn.
func (cm *CacheManager) PutDN(identifier, dn string) {
	cm.set("dn:"+strings.ToLower(strings.TrimSpace(identifier)), dn)
}

// GetEntries returns the cached entries stored under key.
func (cm *CacheManager) GetEntries(key string) ([]*ldap.Entry, bool) {
	v, ok := cm.get("entries:" + key)
	if !ok {
		return nil, false
	}
	return v.([]*ldap.Entry), true
}

// PutEntries stores entries under key. Callers must not modify entries
// afterwards.
func (cm *CacheManager) PutEntries(key string, entries []*ldap.Entry) {
	cm.set("entries:"+key, entries)
}

// SearchKey builds a cache key for a search of filter under baseDN
// returning attributes. Attribute order and case do not matter.
func SearchKey(baseDN, filter string, attributes []string) string {
	attrs := make([]string, len(attributes))
	for i, a := range attributes {
		attrs[i] = strings.ToLower(a)
	}
	slices.Sort(attrs)
	return strings.ToLower(baseDN) + "|" + filter + "|" + strings.Join(slices.Compact(attrs), ",")
}

// Stats returns hit and miss counters.
func (cm *CacheManager) Stats() CacheStats {
	if cm == nil {
		return CacheStats{}
	}
	stats := CacheStats{
		Hits:    cm.hits.Load(),
		Misses:  cm.misses.Load(),
		Entries: int64(cm.cache.ItemCount()),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Clear drops every cached item. Hit and miss counters are cumulative and
// survive a Clear.
func (cm *CacheManager) Clear() {
	if cm == nil {
		return
	}
	cm.cache.Flush()
}
