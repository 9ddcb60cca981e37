package platform

import (
	"fmt"
	"os"
)

// Chmod sets file permissions. On Windows this is a no-op because Windows
// does not support Unix-style permission bits.
func Chmod(path string, mode os.FileMode) error {
	if IsWindows() {
		return nil
	}
	return os.Chmod(path, mode)
}

// MakeExecutable adds the execute bits to path wherever it already has read
// bits, so a plugin entrypoint extracted without them can be run.
func MakeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	perm := info.Mode().Perm()
	return Chmod(path, perm|(perm&0444)>>2)
}
