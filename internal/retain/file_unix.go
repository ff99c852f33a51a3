//go:build unix

package retain

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// writeAtomic writes data to path via a temp file in the same
// directory, fsyncs the temp file, renames it into place, then fsyncs
// the containing directory so the rename itself is durable — a crash
// between these steps leaves either the old file or the new one
// intact, never a half-written one.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("retain: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("retain: write temp file: %w", err)
	}
	if err := unix.Fsync(int(tmp.Fd())); err != nil {
		tmp.Close()
		return fmt.Errorf("retain: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("retain: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("retain: rename into place: %w", err)
	}

	dirFd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("retain: open directory for fsync: %w", err)
	}
	defer unix.Close(dirFd)
	if err := unix.Fsync(dirFd); err != nil {
		return fmt.Errorf("retain: fsync directory: %w", err)
	}
	return nil
}
