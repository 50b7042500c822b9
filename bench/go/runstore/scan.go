package runstore

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/fileutil"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/util"
)

// Commits returns every commit directory in the database, sorted. Entries
// that are not shaped like a commit hash are ignored.
func (s *Store) Commits() ([]types.CommitHash, error) {
	names, err := fileutil.SubDirs(s.root, types.ValidCommitHash)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "listing %s", s.root)
	}
	rv := make([]types.CommitHash, 0, len(names))
	for _, n := range names {
		rv = append(rv, types.CommitHash(n))
	}
	return rv, nil
}

// Runs returns the completed runs of a commit, sorted. Staging directories
// are not included.
func (s *Store) Runs(commit types.CommitHash) ([]types.RunName, error) {
	names, err := fileutil.SubDirs(s.CommitDir(commit), func(name string) bool {
		return !strings.HasPrefix(name, ".")
	})
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "listing runs of %s", commit)
	}
	rv := make([]types.RunName, 0, len(names))
	for _, n := range names {
		rv = append(rv, types.RunName(n))
	}
	return rv, nil
}

// ReadManifest reads and decodes run.json of the given run.
func (s *Store) ReadManifest(commit types.CommitHash, run types.RunName) (*types.RunManifest, error) {
	path := filepath.Join(s.RunDir(commit, run), ManifestFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	m, err := types.DecodeManifest(b)
	if err != nil {
		return nil, skerr.Wrapf(err, "decoding %s", path)
	}
	return m, nil
}

// WriteManifest replaces run.json of an existing run. It returns true if the
// file on disk changed.
func (s *Store) WriteManifest(m *types.RunManifest) (bool, error) {
	b, err := m.Encode()
	if err != nil {
		return false, skerr.Wrap(err)
	}
	path := filepath.Join(s.RunDir(m.CommitHash, m.Name), ManifestFile)
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, b) {
		return false, nil
	}
	err = util.WithWriteFile(path, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
	if err != nil {
		return false, skerr.Wrapf(err, "writing %s", path)
	}
	return true, nil
}

// ListResults returns the ids of every result file under the run directory,
// sorted. Manifests, group files and hidden files are not results.
func (s *Store) ListResults(commit types.CommitHash, run types.RunName) ([]string, error) {
	root := s.RunDir(commit, run)
	var rv []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(d.Name()) != ResultExt || d.Name() == GroupFile {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == ManifestFile || rel == LegacySystemInfoFile {
			return nil
		}
		rv = append(rv, filepath.ToSlash(strings.TrimSuffix(rel, ResultExt)))
		return nil
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "walking %s", root)
	}
	sort.Strings(rv)
	return rv, nil
}
