package daemon

import (
	"time"
)

// CacheEntry is a parsed item list waiting for its title run
type CacheEntry struct {
	Key         string
	ArchivePath string
	CSVPath     string
	XMLPath     string
	Count       int
	CreatedAt   time.Time
}

// ResultCache holds item list results by correlation key. It is owned by the
// correlator loop and needs no locking.
type ResultCache struct {
	entries map[string]*CacheEntry
}

func NewResultCache() *ResultCache {
	return &ResultCache{
		entries: make(map[string]*CacheEntry),
	}
}

func (c *ResultCache) Get(key string) (*CacheEntry, bool) {
	entry, exists := c.entries[key]
	return entry, exists
}

// Set stores entry, replacing an earlier list for the same key
func (c *ResultCache) Set(entry *CacheEntry) {
	c.entries[entry.Key] = entry
}

// Take removes and returns the entry for key
func (c *ResultCache) Take(key string) (*CacheEntry, bool) {
	entry, exists := c.entries[key]
	if exists {
		delete(c.entries, key)
	}
	return entry, exists
}

func (c *ResultCache) Delete(key string) {
	delete(c.entries, key)
}

func (c *ResultCache) Len() int {
	return len(c.entries)
}

// PurgeOlderThan drops entries created more than maxAge before now and returns their keys
func (c *ResultCache) PurgeOlderThan(now time.Time, maxAge time.Duration) []string {
	var purged []string
	for key, entry := range c.entries {
		if now.Sub(entry.CreatedAt) > maxAge {
			delete(c.entries, key)
			purged = append(purged, key)
		}
	}
	return purged
}
