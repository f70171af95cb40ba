// Package linecache is the process-wide registry of synthetic cell
// filenames and their source lines. Cells compiled without a real backing
// file register here so external tracebacks and debuggers can still
// display and step through their code.
package linecache

import (
	"strings"
	"sync"
)

// Entry holds the cached source for one synthetic filename.
type Entry struct {
	// Size is the byte length of the original source.
	Size int
	// Lines are the source lines, each with its trailing newline restored.
	Lines []string
	// Filename echoes the registration key.
	Filename string
}

// Cache maps synthetic filenames to their source. Entries are added on
// compilation and never evicted; the cache lives for the process lifetime.
// Distinct cells register distinct filenames, so concurrent compilations
// only contend on the narrow insert lock.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty, isolated cache. Tests use this to avoid touching
// the process-wide instance.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// defaultCache is the process-wide instance consulted by debug tooling.
var defaultCache = New()

// Default returns the process-wide cache.
func Default() *Cache {
	return defaultCache
}

// Put registers code under filename. Re-registration overwrites, which
// only happens when the same cell id is recompiled with identical content
// hashing to the same synthetic name.
func (c *Cache) Put(filename, code string) {
	lines := strings.Split(code, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for i, line := range lines {
		lines[i] = line + "\n"
	}

	c.mu.Lock()
	c.entries[filename] = Entry{Size: len(code), Lines: lines, Filename: filename}
	c.mu.Unlock()
}

// Get returns the entry for filename.
func (c *Cache) Get(filename string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[filename]

	return entry, ok
}

// Line returns the 1-based line of a registered file, or "".
func (c *Cache) Line(filename string, lineno int) string {
	entry, ok := c.Get(filename)
	if !ok || lineno < 1 || lineno > len(entry.Lines) {
		return ""
	}

	return entry.Lines[lineno-1]
}

// Len reports the number of registered files.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
