package scrub

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MarkerName is the file-count marker written into a sharing-staging
// root. The sharing routine reads it to sanity-check that the staged
// tree arrived complete.
const MarkerName = ".file_count"

// WriteCountMarker counts the regular files under root (the marker
// itself excluded) and records the count in a marker file at the root.
// It returns the count written.
func WriteCountMarker(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && d.Name() != MarkerName {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count files under %s: %w", root, err)
	}

	marker := filepath.Join(root, MarkerName)
	if err := os.WriteFile(marker, []byte(fmt.Sprintf("%d\n", count)), 0o644); err != nil {
		return 0, fmt.Errorf("write marker %s: %w", marker, err)
	}
	return count, nil
}
