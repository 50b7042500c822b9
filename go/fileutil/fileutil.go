package fileutil

import (
	"os"
	"sort"
)

// FileExists returns true if something exists at the given path. Errors other
// than "does not exist" are reported as existing, so callers do not clobber
// what they could not inspect.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// SubDirs returns the sorted names of the directories directly inside dir.
// Names for which keep returns false are left out; keep may be nil.
func SubDirs(dir string, keep func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var rv []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if keep != nil && !keep(e.Name()) {
			continue
		}
		rv = append(rv, e.Name())
	}
	sort.Strings(rv)
	return rv, nil
}
