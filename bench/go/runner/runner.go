// Package runner benchmarks the commit currently checked out in the tracked
// repo and stores the results as a single run.
package runner

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"

	"go.benchtrack.dev/infra/bench/go/config"
	"go.benchtrack.dev/infra/bench/go/dbindex"
	"go.benchtrack.dev/infra/bench/go/events"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/sysinfo"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/exec"
	"go.benchtrack.dev/infra/go/git"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
	"go.benchtrack.dev/infra/go/timer"
)

// Runner runs the benchmark command and records its output.
type Runner struct {
	store     *runstore.Store
	indexPath string
	collector sysinfo.Collector
	bench     config.BenchCommand
}

// New returns a Runner that writes runs to store and records them in the
// index at indexPath.
func New(store *runstore.Store, indexPath string, collector sysinfo.Collector, bench config.BenchCommand) *Runner {
	return &Runner{
		store:     store,
		indexPath: indexPath,
		collector: collector,
		bench:     bench,
	}
}

// Run benchmarks the HEAD of repoDir and stores the results as runName. It
// returns the ids of the stored benchmarks, sorted.
//
// If the run already exists and force is false, Run logs a warning and
// returns nil without starting the benchmark command.
func (r *Runner) Run(ctx context.Context, repoDir string, runName types.RunName, force bool) ([]string, error) {
	head, err := git.GitDir(repoDir).Head(ctx)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	commit := types.CommitHash(head)

	run, err := r.store.BeginRun(ctx, commit, runName, force)
	if errors.Is(err, runstore.ErrAlreadyExists) {
		sklog.Warningf("%s already has results for commit %s, use --force to replace them", runName, commit.Short())
		return nil, nil
	} else if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer run.Abort()

	system, err := r.collector.Collect(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "collecting system info")
	}

	t := timer.New("Benchmarking " + commit.Short() + " as " + string(runName))
	ids, err := r.benchmark(ctx, repoDir, run)
	if err != nil {
		return nil, skerr.Wrapf(err, "benchmarking %s for commit %s", runName, commit.Short())
	}
	t.Stop()

	m := &types.RunManifest{
		CommitHash: commit,
		Name:       runName,
		System:     system,
		Benchmarks: ids,
	}
	if err := run.Commit(ctx, m); err != nil {
		return nil, skerr.Wrapf(err, "storing %s for commit %s", runName, commit.Short())
	}
	if err := dbindex.RecordRun(r.indexPath, commit, runName); err != nil {
		return nil, skerr.Wrapf(err, "run %s for commit %s is stored but not indexed, run sync to repair", runName, commit.Short())
	}
	sklog.Infof("Stored %d benchmarks for commit %s as %s", len(ids), commit.Short(), runName)
	return ids, nil
}

// benchmark runs the bench command and writes its events into run.
func (r *Runner) benchmark(ctx context.Context, repoDir string, run *runstore.Run) ([]string, error) {
	if timeout := r.bench.TimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	proc, err := exec.Start(ctx, &exec.Command{
		Name: r.bench.Name,
		Args: r.bench.Args,
		Dir:  filepath.Join(repoDir, r.bench.Dir),
	})
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer proc.Kill()

	ids, err := consume(events.NewDecoder(proc.Stdout), run)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := proc.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, skerr.Wrapf(err, "timed out after %s", r.bench.TimeoutDuration())
		}
		return nil, skerr.Wrap(err)
	}
	return ids, nil
}

// consume writes every event from d into run and returns the sorted ids of
// the stored results.
func consume(d *events.Decoder, run *runstore.Run) ([]string, error) {
	seen := map[string]bool{}
	for {
		ev, err := d.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, skerr.Wrap(err)
		}
		switch e := ev.(type) {
		case *events.BenchmarkComplete:
			if err := run.PutResult(types.BenchmarkID(e.ID), e.Raw); err != nil {
				return nil, skerr.Wrapf(err, "storing result %q", e.ID)
			}
			sklog.Debugf("Stored %s", e.ID)
			seen[e.ID] = true
		case *events.GroupComplete:
			if err := run.PutGroup(e.GroupName, e.Raw); err != nil {
				return nil, skerr.Wrapf(err, "storing group %q", e.GroupName)
			}
			sklog.Infof("Finished group %s (%d benchmarks)", e.GroupName, len(e.Benchmarks))
		}
	}
	if n := d.Skipped(); n > 0 {
		sklog.Debugf("Skipped %d unrecognized lines of output", n)
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
