// Package aggregate flattens the database into the single all-data.json file
// read by the web frontend.
package aggregate

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Jeffail/gabs/v2"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
	"go.benchtrack.dev/infra/go/util"
	"golang.org/x/sync/errgroup"
)

const (
	estimatePath = "mean.estimate"
	unitPath     = "mean.unit"
)

// BenchValue is the mean of a single benchmark.
type BenchValue struct {
	Estimate float64 `json:"estimate"`
	Unit     string  `json:"unit"`
}

// CommitData is everything stored for one commit.
type CommitData struct {
	// Machines that have a run for this commit, sorted.
	Machines []types.RunName `json:"machines"`
	// Benchmarks maps run name to benchmark id to value.
	Benchmarks map[types.RunName]map[string]BenchValue `json:"benchmarks"`
}

// AllData is the contents of all-data.json.
type AllData struct {
	// Machines maps each run name to the system info of its run on the
	// greatest commit hash. Commit hashes carry no order, so this is an
	// arbitrary but stable choice.
	Machines map[types.RunName]types.SystemInfo `json:"machines"`
	Commits  map[types.CommitHash]*CommitData   `json:"commits"`
}

// Scan reads every run in store. Runs without a readable manifest and
// results without a mean estimate are logged and left out. Runs are read
// concurrently but the result does not depend on scheduling.
func Scan(store *runstore.Store) (*AllData, error) {
	rv := &AllData{
		Machines: map[types.RunName]types.SystemInfo{},
		Commits:  map[types.CommitHash]*CommitData{},
	}
	commits, err := store.Commits()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var jobs []*runData
	for _, commit := range commits {
		runs, err := store.Runs(commit)
		if err != nil {
			sklog.Errorf("Skipping commit %s: %s", commit, err)
			continue
		}
		for _, run := range runs {
			jobs = append(jobs, &runData{commit: commit, run: run})
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for _, job := range jobs {
		g.Go(func() error {
			m, err := store.ReadManifest(job.commit, job.run)
			if err != nil {
				sklog.Warningf("Skipping %s/%s: %s", job.commit.Short(), job.run, err)
				return nil
			}
			job.manifest = m
			job.values = readValues(store.RunDir(job.commit, job.run), m.Benchmarks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, skerr.Wrap(err)
	}

	// jobs are ordered by commit then run, so later commits win in Machines.
	for _, job := range jobs {
		if job.manifest == nil {
			continue
		}
		cd, ok := rv.Commits[job.commit]
		if !ok {
			cd = &CommitData{Benchmarks: map[types.RunName]map[string]BenchValue{}}
			rv.Commits[job.commit] = cd
		}
		cd.Machines = append(cd.Machines, job.run)
		cd.Benchmarks[job.run] = job.values
		rv.Machines[job.run] = job.manifest.System
	}
	sklog.Infof("Found %d commits, %d machines", len(rv.Commits), len(rv.Machines))
	return rv, nil
}

type runData struct {
	commit   types.CommitHash
	run      types.RunName
	manifest *types.RunManifest
	values   map[string]BenchValue
}

func readValues(runDir string, ids []string) map[string]BenchValue {
	rv := make(map[string]BenchValue, len(ids))
	for _, id := range ids {
		path := filepath.Join(runDir, filepath.FromSlash(id)+runstore.ResultExt)
		v, err := readValue(path)
		if err != nil {
			sklog.Debugf("No value for %s: %s", path, err)
			continue
		}
		rv[id] = v
	}
	return rv
}

func readValue(path string) (BenchValue, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return BenchValue{}, skerr.Wrap(err)
	}
	parsed, err := gabs.ParseJSON(b)
	if err != nil {
		return BenchValue{}, skerr.Wrap(err)
	}
	estimate, ok := parsed.Path(estimatePath).Data().(float64)
	if !ok {
		return BenchValue{}, skerr.Fmt("missing %s", estimatePath)
	}
	unit, ok := parsed.Path(unitPath).Data().(string)
	if !ok {
		return BenchValue{}, skerr.Fmt("missing %s", unitPath)
	}
	return BenchValue{Estimate: estimate, Unit: unit}, nil
}

// Write stores data as JSON at path.
func Write(path string, data *AllData) error {
	return skerr.Wrap(util.WithWriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}))
}
