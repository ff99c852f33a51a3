//go:build !unix

package retain

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic on non-unix platforms falls back to a plain
// temp-file-then-rename without an explicit fsync: os.Rename is still
// atomic on these filesystems, just without the same durability
// guarantee across a power loss.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("retain: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("retain: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("retain: close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}
