package webtool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scout/internal/logging"
)

// CacheEntry holds a single cached response.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Source    string    `json:"source"`
}

// ResearchCache stores search and fetch responses so repeated runs on the
// same topic do not hammer the network. Entries expire after a TTL. When a
// disk directory is configured, entries survive process restarts.
type ResearchCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	maxSize int
	ttl     time.Duration
	diskDir string
}

// NewResearchCache creates a memory-only cache with the given size limit and TTL.
func NewResearchCache(maxSize int, ttl time.Duration) *ResearchCache {
	return &ResearchCache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// NewPersistentCache creates a cache that mirrors entries to dir as JSON files.
// The directory is created if missing.
func NewPersistentCache(maxSize int, ttl time.Duration, dir string) (*ResearchCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := NewResearchCache(maxSize, ttl)
	c.diskDir = dir
	return c, nil
}

// Get returns the entry for key if present and not expired. On a memory miss
// it falls back to the disk layer when one is configured.
func (c *ResearchCache) Get(key string) (*CacheEntry, bool) {
	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()

	if found {
		if time.Now().After(entry.ExpiresAt) {
			c.Delete(key)
			return nil, false
		}
		return entry, true
	}

	if c.diskDir == "" {
		return nil, false
	}
	return c.loadFromDisk(key)
}

// Set stores a value under key, evicting the oldest entry at capacity.
func (c *ResearchCache) Set(key, value, source string) {
	now := time.Now()
	entry := &CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
		Source:    source,
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = entry
	c.mu.Unlock()

	if c.diskDir != "" {
		c.writeToDisk(entry)
	}
}

// Delete removes an entry from memory and disk.
func (c *ResearchCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.diskDir != "" {
		_ = os.Remove(c.diskPath(key))
	}
}

// Clear removes all entries. Disk files are left for their TTL to expire.
func (c *ResearchCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mu.Unlock()
}

// Size returns the number of in-memory entries.
func (c *ResearchCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictOldest drops the entry with the earliest creation time.
// Caller must hold the write lock.
func (c *ResearchCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ResearchCache) diskPath(key string) string {
	return filepath.Join(c.diskDir, key+".json")
}

func (c *ResearchCache) loadFromDisk(key string) (*CacheEntry, bool) {
	data, err := os.ReadFile(c.diskPath(key))
	if err != nil {
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(c.diskPath(key))
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(c.diskPath(key))
		return nil, false
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &entry
	c.mu.Unlock()

	return &entry, true
}

func (c *ResearchCache) writeToDisk(entry *CacheEntry) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(c.diskPath(entry.Key), data, 0644); err != nil {
		logging.SearchWarn("Cache write failed for %s: %v", entry.Key, err)
	}
}

// hashKey creates a cache key from arbitrary inputs.
func hashKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
