// Package reconcile rebuilds run manifests and the global index from the
// files in the database.
//
// The result files are the source of truth. Manifests and db.json can drift
// from them after interrupted writes, manual edits or format changes, and
// Run brings them back in line.
package reconcile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.benchtrack.dev/infra/bench/go/dbindex"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
)

// Options for Run.
type Options struct {
	// SkipIndex leaves db.json alone.
	SkipIndex bool
}

// Result of a reconciliation.
type Result struct {
	// Synced is the number of runs whose manifest is now up to date.
	Synced int
	// Rewritten is the number of manifests that had to change.
	Rewritten int
	// Failed lists "<commit>/<run>" for every run that couldn't be repaired.
	Failed []string
	// Err holds one error per failed run, or nil.
	Err error
}

// Run rewrites the manifest of every run in store from the result files on
// disk, then rebuilds the index at indexPath. Runs that can't be repaired are
// reported in the Result and don't stop the pass.
func Run(ctx context.Context, store *runstore.Store, indexPath string, opts Options) (*Result, error) {
	commits, err := store.Commits()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var merr *multierror.Error
	rv := &Result{}
	for _, commit := range commits {
		if err := ctx.Err(); err != nil {
			return nil, skerr.Wrap(err)
		}
		runs, err := store.Runs(commit)
		if err != nil {
			sklog.Errorf("Skipping commit %s: %s", commit, err)
			merr = multierror.Append(merr, skerr.Wrapf(err, "commit %s", commit))
			rv.Failed = append(rv.Failed, string(commit))
			continue
		}
		for _, run := range runs {
			changed, err := syncRun(store, commit, run)
			if err != nil {
				sklog.Warningf("Failed to sync %s/%s: %s", commit, run, err)
				merr = multierror.Append(merr, skerr.Wrapf(err, "%s/%s", commit, run))
				rv.Failed = append(rv.Failed, string(commit)+"/"+string(run))
				continue
			}
			rv.Synced++
			if changed {
				rv.Rewritten++
			}
		}
	}
	rv.Err = merr.ErrorOrNil()
	sklog.Infof("Synced %d manifests (%d rewritten), %d failed.", rv.Synced, rv.Rewritten, len(rv.Failed))

	if opts.SkipIndex {
		return rv, nil
	}
	idx, err := dbindex.Rebuild(store)
	if err != nil {
		return rv, skerr.Wrap(err)
	}
	if err := idx.Save(indexPath); err != nil {
		return rv, skerr.Wrapf(err, "saving index")
	}
	sklog.Infof("Rebuilt %s with %d commits.", indexPath, len(idx.Commits()))
	return rv, nil
}

// syncRun rewrites a single manifest. It returns true if the file changed.
func syncRun(store *runstore.Store, commit types.CommitHash, run types.RunName) (bool, error) {
	system, err := recoverSystemInfo(store, commit, run)
	if err != nil {
		return false, skerr.Wrap(err)
	}
	ids, err := store.ListResults(commit, run)
	if err != nil {
		return false, skerr.Wrap(err)
	}
	return store.WriteManifest(&types.RunManifest{
		CommitHash: commit,
		Name:       run,
		System:     system,
		Benchmarks: ids,
	})
}

// recoverSystemInfo returns the system info of the existing manifest, or of
// the legacy system_info.json. The legacy file holds either a whole manifest
// or just the system info; decoding it as a manifest handles both, since
// every field that isn't a manifest field is system info.
func recoverSystemInfo(store *runstore.Store, commit types.CommitHash, run types.RunName) (types.SystemInfo, error) {
	m, err := store.ReadManifest(commit, run)
	if err == nil && len(m.System) > 0 {
		return m.System, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		sklog.Warningf("Ignoring unreadable manifest of %s/%s: %s", commit.Short(), run, err)
	}

	legacyPath := filepath.Join(store.RunDir(commit, run), runstore.LegacySystemInfoFile)
	b, err := os.ReadFile(legacyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, skerr.Fmt("no usable %s or %s", runstore.ManifestFile, runstore.LegacySystemInfoFile)
	} else if err != nil {
		return nil, skerr.Wrap(err)
	}
	legacy, err := types.DecodeManifest(b)
	if err != nil {
		return nil, skerr.Wrapf(err, "decoding %s", legacyPath)
	}
	if len(legacy.System) == 0 {
		return nil, skerr.Fmt("%s holds no system info", legacyPath)
	}
	return legacy.System, nil
}
