package joblog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ClearScratch removes the files in dir matching any of the globs and returns
// the removed names in sorted order. Directories are left alone.
func ClearScratch(dir string, globs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var removed []string
	for _, glob := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, glob))
		if err != nil {
			return removed, fmt.Errorf("scratch pattern %q: %w", glob, err)
		}
		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			info, err := os.Lstat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if err := os.Remove(match); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("remove scratch file: %w", err)
			}
			removed = append(removed, filepath.Base(match))
		}
	}
	sort.Strings(removed)
	return removed, nil
}
