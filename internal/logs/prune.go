package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Prune removes .log files in dir whose modification time is older than the
// retention window. The actively written log keeps a fresh mtime, so only
// stale files from earlier runs are removed. It returns the number of files
// deleted.
func Prune(dir string, retention time.Duration) (int, error) {
	if dir == "" || retention <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read log directory: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove stale log %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}
