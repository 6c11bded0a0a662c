package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// statsKey identifies one statistics computation: a universe identity and the
// price snapshot version it was computed from.
type statsKey struct {
	universe string // deterministic hash of the sorted ticker set
	version  int64
}

func (k statsKey) String() string {
	return fmt.Sprintf("%s|%d", k.universe, k.version)
}

// hashUniverse creates a deterministic hash from a ticker set for cache keys.
// Tickers are sorted so the hash is order-independent.
func hashUniverse(tickers []string) string {
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h[:16])
}

// statsCache caches AssetStatistics per (universe, snapshot version). A
// singleflight.Group coalesces concurrent computations of the same key so the
// first caller computes and the rest wait on that result. Only complete
// results are ever stored; an aborted run leaves the cache untouched.
type statsCache struct {
	mu      sync.RWMutex
	entries map[statsKey]*AssetStatistics
	group   singleflight.Group
}

func newStatsCache() *statsCache {
	return &statsCache{
		entries: make(map[statsKey]*AssetStatistics),
	}
}

func (c *statsCache) get(key statsKey) (*AssetStatistics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

func (c *statsCache) put(key statsKey, stats *AssetStatistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = stats
}

// invalidateBefore removes entries computed from snapshots older than version
// and returns how many were dropped.
func (c *statsCache) invalidateBefore(version int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if key.version < version {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *statsCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
