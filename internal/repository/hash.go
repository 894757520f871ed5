package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirectoryHash digests the current root into the cache generation key:
// SHA-256 over "relPath:mtimeNs" lines sorted by path. Two roots with
// identical paths and mtimes hash identically; hidden entries do not
// participate.
func (r *Repository) DirectoryHash() (string, error) {
	root, err := r.Root()
	if err != nil {
		return "", err
	}

	var lines []string
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		lines = append(lines, fmt.Sprintf("%s:%d", filepath.ToSlash(rel), info.ModTime().UnixNano()))
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("hashing content directory: %w", walkErr)
	}

	sort.Strings(lines)

	h := sha256.New()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
