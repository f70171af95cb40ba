package cache

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/cellforge/pkg/cell"
)

// snapshotVersion guards the on-disk layout. Bump on incompatible change.
const snapshotVersion = 1

// snapshot is the persisted form of the cache. Compiled cells hold live
// trees that are cheap to rebuild but awkward to serialize, so the
// snapshot stores only the source and identity of each entry and
// recompiles on restore.
type snapshot struct {
	Version int             `json:"version"`
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	ID   cell.CellID `json:"id"`
	Code string      `json:"code"`
}

// CompileFunc rebuilds a compiled cell from its source during restore.
type CompileFunc func(code string, id cell.CellID) (*cell.CompiledCell, error)

// Snapshot writes the cache contents as lz4-compressed JSON, most
// recently used first so a truncated restore keeps the hot entries.
func (c *CompileCache) Snapshot(w io.Writer) error {
	c.mu.RLock()

	snap := snapshot{Version: snapshotVersion}
	for entry := c.head; entry != nil; entry = entry.next {
		snap.Entries = append(snap.Entries, snapshotEntry{
			ID:   entry.compiled.ID,
			Code: entry.compiled.Code,
		})
	}

	c.mu.RUnlock()

	zw := lz4.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(&snap); err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush cache snapshot: %w", err)
	}

	return nil
}

// Restore repopulates the cache from a snapshot, recompiling each entry
// with the supplied function. Entries that no longer compile are
// skipped; a stale snapshot should never block startup.
func (c *CompileCache) Restore(r io.Reader, compile CompileFunc) error {
	var snap snapshot
	if err := json.NewDecoder(lz4.NewReader(r)).Decode(&snap); err != nil {
		return fmt.Errorf("decode cache snapshot: %w", err)
	}

	if snap.Version != snapshotVersion {
		return fmt.Errorf("cache snapshot version %d not supported", snap.Version)
	}

	// Insert in reverse so the snapshot's MRU order is preserved.
	for i := len(snap.Entries) - 1; i >= 0; i-- {
		entry := snap.Entries[i]

		compiled, err := compile(entry.Code, entry.ID)
		if err != nil {
			continue
		}

		c.Put(compiled)
	}

	return nil
}
