package archive

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// WriteManifest records what a run is about to archive: a reference
// line identifying the mapping, then a full recursive listing of the
// cleartext tree. It must be written while the mapping is still
// mounted; after the unmount this listing is the operator's only
// persisted record of the run's content.
//
// The file is named by run timestamp and a sanitized form of the
// cleartext path, and the path of the written manifest is returned.
func WriteManifest(dir string, stamp time.Time, mapping, encryptedDir, cleartextDir string) (string, error) {
	name := fmt.Sprintf("%s-%s.txt", stamp.Format("20060102-150405"), sanitizePath(cleartextDir))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s@%s %s\n", mapping, encryptedDir, cleartextDir)

	err = filepath.WalkDir(cleartextDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(cleartextDir, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			rel += string(filepath.Separator)
		}
		_, werr := fmt.Fprintln(w, rel)
		return werr
	})
	if err != nil {
		return "", fmt.Errorf("list %s: %w", cleartextDir, err)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// sanitizePath turns an absolute path into a filename fragment:
// separators and whitespace become underscores.
func sanitizePath(p string) string {
	var b strings.Builder
	for _, r := range strings.Trim(p, string(filepath.Separator)) {
		if r == filepath.Separator || unicode.IsSpace(r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
