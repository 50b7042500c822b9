// Package dbindex maintains db.json, the list of runs stored for each commit.
//
// The index is a cache over the run directories; the directories are the
// source of truth and Rebuild recomputes the index from them. Updates are a
// load, modify, save cycle with no locking, so two processes updating the
// same index concurrently can lose a write.
package dbindex

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"sort"

	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
	"go.benchtrack.dev/infra/go/util"
)

// Index maps a commit to the names of the runs stored for it.
type Index struct {
	runs map[types.CommitHash][]types.RunName
}

// New returns an empty Index.
func New() *Index {
	return &Index{runs: map[types.CommitHash][]types.RunName{}}
}

// Load reads the index at path. A missing file is an empty index.
func Load(path string) (*Index, error) {
	idx := New()
	err := util.WithReadFile(path, func(r io.Reader) error {
		var raw map[types.CommitHash][]types.RunName
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return skerr.Wrapf(err, "decoding %s", path)
		}
		for commit, runs := range raw {
			for _, run := range runs {
				idx.Add(commit, run)
			}
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return idx, nil
}

// Has returns true if the index lists run for commit.
func (idx *Index) Has(commit types.CommitHash, run types.RunName) bool {
	runs := idx.runs[commit]
	i := sort.Search(len(runs), func(i int) bool { return runs[i] >= run })
	return i < len(runs) && runs[i] == run
}

// Runs returns the sorted run names for commit.
func (idx *Index) Runs(commit types.CommitHash) []types.RunName {
	return append([]types.RunName(nil), idx.runs[commit]...)
}

// Commits returns every commit in the index, sorted.
func (idx *Index) Commits() []types.CommitHash {
	rv := make([]types.CommitHash, 0, len(idx.runs))
	for c := range idx.runs {
		rv = append(rv, c)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i] < rv[j] })
	return rv
}

// Add records run for commit. It returns false if it was already recorded.
func (idx *Index) Add(commit types.CommitHash, run types.RunName) bool {
	if idx.Has(commit, run) {
		return false
	}
	runs := append(idx.runs[commit], run)
	sort.Slice(runs, func(i, j int) bool { return runs[i] < runs[j] })
	idx.runs[commit] = runs
	return true
}

// Save overwrites the file at path with the index.
func (idx *Index) Save(path string) error {
	b, err := json.MarshalIndent(idx.runs, "", "  ")
	if err != nil {
		return skerr.Wrap(err)
	}
	b = append(b, '\n')
	return skerr.Wrap(util.WriteFileAtomic(path, b))
}

// RecordRun adds a single run to the index stored at path.
func RecordRun(path string, commit types.CommitHash, run types.RunName) error {
	idx, err := Load(path)
	if err != nil {
		return skerr.Wrap(err)
	}
	if !idx.Add(commit, run) {
		sklog.Debugf("%s/%s already in %s", commit.Short(), run, path)
		return nil
	}
	return skerr.Wrapf(idx.Save(path), "recording %s/%s", commit.Short(), run)
}

// Rebuild computes the index from the runs in the store. Runs without a
// readable manifest are left out.
func Rebuild(store *runstore.Store) (*Index, error) {
	idx := New()
	commits, err := store.Commits()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	for _, commit := range commits {
		runs, err := store.Runs(commit)
		if err != nil {
			sklog.Errorf("Skipping %s: %s", commit, err)
			continue
		}
		for _, run := range runs {
			if _, err := store.ReadManifest(commit, run); err != nil {
				sklog.Warningf("Not indexing %s/%s: %s", commit.Short(), run, err)
				continue
			}
			idx.Add(commit, run)
		}
	}
	return idx, nil
}
