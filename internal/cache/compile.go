// Package cache provides an LRU cache for compiled cells with cost-based
// eviction and lz4-compressed snapshot persistence for warm starts.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/cellforge/pkg/cell"
)

// DefaultMaxSize is the default maximum cached source size (64 MB).
// Compiled cells are metadata plus two trees; their cost is dominated by
// the source they retain, so the budget is expressed in source bytes.
const DefaultMaxSize = 64 * 1024 * 1024

// bytesPerKB is the number of bytes in a kilobyte.
const bytesPerKB = 1024.0

// CompileCache is a cross-session LRU cache for compiled cells, keyed by
// the cell's content key. Recompiling an unchanged cell is pure waste:
// the key is computed over the original source, so a hit is always safe
// to reuse.
type CompileCache struct {
	mu          sync.RWMutex
	entries     map[uint64]*lruEntry
	head        *lruEntry // Most recently used.
	tail        *lruEntry // Least recently used.
	maxSize     int64
	currentSize int64

	// Metrics (atomic for lock-free reads).
	hits   atomic.Int64
	misses atomic.Int64
}

// lruEntry is a doubly-linked list node for LRU tracking.
type lruEntry struct {
	key         uint64
	compiled    *cell.CompiledCell
	size        int64
	accessCount int64
	prev        *lruEntry
	next        *lruEntry
}

// evictionCost calculates the cost of evicting this entry.
// Higher cost = less desirable to evict. We want to evict large,
// rarely-reused cells first.
func (e *lruEntry) evictionCost() float64 {
	if e.size == 0 {
		return float64(e.accessCount)
	}

	sizeKB := float64(e.size) / bytesPerKB
	if sizeKB < 1 {
		sizeKB = 1
	}

	return float64(e.accessCount) / sizeKB
}

// New creates a compile cache with the specified maximum source size in
// bytes. Non-positive sizes fall back to DefaultMaxSize.
func New(maxSize int64) *CompileCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &CompileCache{
		entries: make(map[uint64]*lruEntry),
		maxSize: maxSize,
	}
}

// Get retrieves a compiled cell by content key. Returns nil on a miss.
func (c *CompileCache) Get(key uint64) *cell.CompiledCell {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return nil
	}

	c.hits.Add(1)

	entry.accessCount++
	c.moveToFront(entry)

	return entry.compiled
}

// Put adds a compiled cell under its content key. If the cache exceeds
// its budget, entries are evicted large-and-cold first.
func (c *CompileCache) Put(compiled *cell.CompiledCell) {
	if compiled == nil {
		return
	}

	size := int64(len(compiled.Code))
	if size > c.maxSize {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[compiled.Key]; ok {
		entry.accessCount++
		c.moveToFront(entry)

		return
	}

	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	if c.currentSize+size > c.maxSize {
		return
	}

	entry := &lruEntry{
		key:         compiled.Key,
		compiled:    compiled,
		size:        size,
		accessCount: 1,
	}

	c.entries[compiled.Key] = entry
	c.currentSize += size
	c.addToFront(entry)
}

// Stats returns cache statistics.
func (c *CompileCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Clear removes all entries from the cache.
func (c *CompileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uint64]*lruEntry)
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

// moveToFront moves an entry to the front of the LRU list.
func (c *CompileCache) moveToFront(entry *lruEntry) {
	if entry == c.head {
		return
	}

	c.removeFromList(entry)
	c.addToFront(entry)
}

// addToFront adds an entry to the front of the LRU list.
func (c *CompileCache) addToFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}

	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

// removeFromList removes an entry from the LRU list.
func (c *CompileCache) removeFromList(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
}

// evictionSampleSize is the number of LRU candidates sampled for
// cost-based eviction, keeping eviction O(k) instead of O(n).
const evictionSampleSize = 5

// evictLowestCost removes the entry with the lowest eviction cost from
// the LRU tail region.
func (c *CompileCache) evictLowestCost() {
	if c.tail == nil {
		return
	}

	var candidates [evictionSampleSize]*lruEntry

	count := 0
	entry := c.tail

	for entry != nil && count < evictionSampleSize {
		candidates[count] = entry
		count++
		entry = entry.prev
	}

	if count == 0 {
		return
	}

	victim := candidates[0]
	lowestCost := victim.evictionCost()

	for i := 1; i < count; i++ {
		cost := candidates[i].evictionCost()
		if cost < lowestCost {
			lowestCost = cost
			victim = candidates[i]
		}
	}

	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.currentSize -= victim.size
}
