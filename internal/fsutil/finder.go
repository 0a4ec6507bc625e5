// Package fsutil locates configuration files and lays out the directories a
// run writes to.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesByExtension walks root and returns every regular file whose name
// ends in ext, in lexical order, so split configuration blocks merge the same
// way on every run. Hidden directories such as .git are not entered.
func FindFilesByExtension(root, ext string) ([]string, error) {
	if ext == "" {
		return nil, errors.New("file extension is empty")
	}

	var found []string
	walk := func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ext) {
			found = append(found, path)
		}
		return nil
	}
	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}
