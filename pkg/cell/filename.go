package cell

import (
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// Synthetic filename layout: a fixed prefix, the cell id, and an optional
// suffix, inside a process-scoped temporary directory.
const (
	syntheticPrefix = "__cellforge__cell_"
	syntheticExt    = ".py"
)

var cellIDPattern = regexp.MustCompile(`__cellforge__cell_(.*?)_`)

var (
	tmpDir     string
	tmpDirOnce sync.Once
)

// tempDir returns the process-scoped directory for synthetic cell files.
// Falls back to the system temp directory if a dedicated one cannot be
// created.
func tempDir() string {
	tmpDirOnce.Do(func() {
		dir, err := os.MkdirTemp("", "cellforge_")
		if err != nil {
			dir = os.TempDir()
		}

		tmpDir = dir
	})

	return tmpDir
}

// Filename returns the synthetic filename that encodes the cell id.
func Filename(id CellID, suffix string) string {
	return filepath.Join(tempDir(), syntheticPrefix+string(id)+"_"+suffix+syntheticExt)
}

// CellIDFromFilename recovers the cell id from a synthetic filename.
// Returns "" when the filename does not match the synthetic layout.
func CellIDFromFilename(filename string) CellID {
	matches := cellIDPattern.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return ""
	}

	return CellID(matches[1])
}
