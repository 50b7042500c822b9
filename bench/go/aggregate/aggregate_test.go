package aggregate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/types"
)

var (
	hashA = types.CommitHash(strings.Repeat("a", 40))
	hashB = types.CommitHash(strings.Repeat("b", 40))
)

func putRun(t *testing.T, store *runstore.Store, commit types.CommitHash, run types.RunName, arch string, results map[string]string) {
	ctx := context.Background()
	r, err := store.BeginRun(ctx, commit, run, false)
	require.NoError(t, err)
	defer r.Abort()
	var ids []string
	for id, payload := range results {
		require.NoError(t, r.PutResult(types.BenchmarkID(id), []byte(payload)))
		ids = append(ids, id)
	}
	require.NoError(t, r.Commit(ctx, &types.RunManifest{
		CommitHash: commit,
		Name:       run,
		System:     types.SystemInfo{"arch": json.RawMessage(`"` + arch + `"`)},
		Benchmarks: ids,
	}))
}

func TestScan_CollectsMeansPerMachine(t *testing.T) {
	store := runstore.New(t.TempDir())
	putRun(t, store, hashA, "aorus", "x86_64", map[string]string{
		"foo/bar": `{"id":"foo/bar","mean":{"estimate":1.5,"unit":"ns"}}`,
		"no/mean": `{"id":"no/mean"}`,
	})
	putRun(t, store, hashA, "mac", "arm64", map[string]string{
		"foo/bar": `{"id":"foo/bar","mean":{"estimate":2,"unit":"ns"}}`,
	})
	putRun(t, store, hashB, "aorus", "x86_64-v2", map[string]string{
		"baz": `{"id":"baz","mean":{"estimate":30.25,"unit":"us"}}`,
	})
	// Run without a manifest.
	require.NoError(t, os.MkdirAll(filepath.Join(store.RunDir(hashB, "broken"), "x"), 0755))

	got, err := Scan(store)
	require.NoError(t, err)

	want := &AllData{
		Machines: map[types.RunName]types.SystemInfo{
			"aorus": {"arch": json.RawMessage(`"x86_64-v2"`)},
			"mac":   {"arch": json.RawMessage(`"arm64"`)},
		},
		Commits: map[types.CommitHash]*CommitData{
			hashA: {
				Machines: []types.RunName{"aorus", "mac"},
				Benchmarks: map[types.RunName]map[string]BenchValue{
					"aorus": {"foo/bar": {Estimate: 1.5, Unit: "ns"}},
					"mac":   {"foo/bar": {Estimate: 2, Unit: "ns"}},
				},
			},
			hashB: {
				Machines: []types.RunName{"aorus"},
				Benchmarks: map[types.RunName]map[string]BenchValue{
					"aorus": {"baz": {Estimate: 30.25, Unit: "us"}},
				},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scan() mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_EmptyStore(t *testing.T) {
	got, err := Scan(runstore.New(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, got.Commits)
	assert.Empty(t, got.Machines)
}

func TestWrite_JSONShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web", "public", "all-data.json")
	data := &AllData{
		Machines: map[types.RunName]types.SystemInfo{"m": {"arch": json.RawMessage(`"x"`)}},
		Commits: map[types.CommitHash]*CommitData{
			hashA: {
				Machines:   []types.RunName{"m"},
				Benchmarks: map[types.RunName]map[string]BenchValue{"m": {"b": {Estimate: 1, Unit: "ns"}}},
			},
		},
	}
	require.NoError(t, Write(path, data))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"machines": {"m": {"arch": "x"}},
		"commits": {"`+string(hashA)+`": {
			"machines": ["m"],
			"benchmarks": {"m": {"b": {"estimate": 1, "unit": "ns"}}}
		}}
	}`, string(b))
}
