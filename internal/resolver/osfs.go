package resolver

import (
	"fmt"
	"os"
	"path/filepath"
)

// OSFilesystem checks candidate paths against the local disk. Candidates
// are relative to Root, the snapshots directory.
type OSFilesystem struct {
	Root string
}

func (f OSFilesystem) Exists(path string) (bool, error) {
	_, err := os.Stat(filepath.Join(f.Root, path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}

	// Permission and I/O errors are a broken environment, not missing
	// data, so they surface to the caller instead of reading as a miss.
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}
