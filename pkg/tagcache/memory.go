package tagcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xjectro/actionkit/internal/constants"
)

// MemoryCache is an in-memory Store with a tag index.
type MemoryCache struct {
	mu      sync.RWMutex
	maxSize int
	seq     uint64
	entries map[string]*memoryItem
	tags    map[string]map[string]struct{}
	now     func() time.Time

	// Invalidation counters: per tag, and one for Clear.
	tagVersions  map[string]uint64
	clearVersion uint64
}

type memoryItem struct {
	entry *Entry
	seq   uint64
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
// A non-positive maxSize uses the default size.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	return &MemoryCache{
		maxSize: maxSize,
		entries: make(map[string]*memoryItem),
		tags:    make(map[string]map[string]struct{}),
		now:     time.Now,

		tagVersions: make(map[string]uint64),
	}
}

// Get returns a copy of the entry stored under key. Expired entries are
// removed and reported as ErrEntryExpired.
func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, error) {
	c.mu.RLock()
	item, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	if item.entry.Expired(c.now()) {
		c.mu.Lock()
		// Re-check: the key may have been replaced since the read lock was released.
		if current, ok := c.entries[key]; ok && current == item {
			c.removeLocked(key)
		}
		c.mu.Unlock()

		return nil, fmt.Errorf("%w: %s", ErrEntryExpired, key)
	}

	return item.entry.clone(), nil
}

// Set stores a copy of entry under key, evicting the oldest entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	err := validateEntry(entry)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.setLocked(key, entry)
	c.mu.Unlock()

	return nil
}

// Version sums the invalidation counters of tags and the clear counter.
func (c *MemoryCache) Version(_ context.Context, tags []string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.versionLocked(tags)
}

// SetIfVersion stores entry unless one of its tags was invalidated, or the
// cache cleared, since version was read.
func (c *MemoryCache) SetIfVersion(_ context.Context, key string, entry *Entry, version uint64) (bool, error) {
	err := validateEntry(entry)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versionLocked(entry.Tags) != version {
		return false, nil
	}

	c.setLocked(key, entry)

	return true, nil
}

func validateEntry(entry *Entry) error {
	if entry == nil {
		return ErrNilEntry
	}

	for _, tag := range entry.Tags {
		if err := ValidateTag(tag); err != nil {
			return fmt.Errorf("%w: %q", err, tag)
		}
	}

	return nil
}

func (c *MemoryCache) versionLocked(tags []string) uint64 {
	version := c.clearVersion
	for _, tag := range tags {
		version += c.tagVersions[tag]
	}

	return version
}

func (c *MemoryCache) setLocked(key string, entry *Entry) {
	if _, exists := c.entries[key]; exists {
		c.removeLocked(key)
	} else if len(c.entries) >= c.maxSize {
		c.cleanupLocked()

		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
	}

	c.seq++
	c.entries[key] = &memoryItem{entry: entry.clone(), seq: c.seq}

	for _, tag := range entry.Tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}

		keys[key] = struct{}{}
	}
}

// Delete removes key. Deleting a missing key is not an error.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()

	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*memoryItem)
	c.tags = make(map[string]map[string]struct{})
	c.clearVersion++
	c.mu.Unlock()

	return nil
}

// Has reports whether a live entry exists for key.
func (c *MemoryCache) Has(_ context.Context, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.entries[key]

	return ok && !item.entry.Expired(c.now())
}

// Invalidate removes every entry tagged with tag.
func (c *MemoryCache) Invalidate(_ context.Context, tag string) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.tags[tag] {
		c.removeLocked(key)
	}

	delete(c.tags, tag)
	c.tagVersions[tag]++

	return nil
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	c.cleanupLocked()
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *MemoryCache) cleanupLocked() {
	now := c.now()

	for key, item := range c.entries {
		if item.entry.Expired(now) {
			c.removeLocked(key)
		}
	}
}

func (c *MemoryCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestSeq uint64
		found     bool
	)

	for key, item := range c.entries {
		if !found || item.seq < oldestSeq {
			oldestKey, oldestSeq, found = key, item.seq, true
		}
	}

	if found {
		c.removeLocked(oldestKey)
	}
}

func (c *MemoryCache) removeLocked(key string) {
	item, ok := c.entries[key]
	if !ok {
		return
	}

	delete(c.entries, key)

	for _, tag := range item.entry.Tags {
		keys := c.tags[tag]
		delete(keys, key)

		if len(keys) == 0 {
			delete(c.tags, tag)
		}
	}
}

var (
	_ Store     = (*MemoryCache)(nil)
	_ Versioned = (*MemoryCache)(nil)
)
