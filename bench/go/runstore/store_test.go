package runstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.benchtrack.dev/infra/bench/go/types"
)

var (
	hashA = types.CommitHash(strings.Repeat("a", 40))
	hashB = types.CommitHash(strings.Repeat("b", 40))
)

const (
	benchPayload = `{"reason":"benchmark-complete","id":"foo/bar","mean":{"estimate":1.2,"unit":"ns"}}`
	groupPayload = `{"reason":"group-complete","group_name":"foo","benchmarks":["bar"]}`
)

func manifest(commit types.CommitHash, run types.RunName, benchmarks ...string) *types.RunManifest {
	return &types.RunManifest{
		CommitHash: commit,
		Name:       run,
		System:     types.SystemInfo{"arch": []byte(`"x86_64"`)},
		Benchmarks: benchmarks,
	}
}

// writeRun commits a run holding a single result with the given id.
func writeRun(t *testing.T, s *Store, commit types.CommitHash, run types.RunName, id string) {
	r, err := s.BeginRun(context.Background(), commit, run, true)
	require.NoError(t, err)
	defer r.Abort()
	require.NoError(t, r.PutResult(types.BenchmarkID(id), []byte(`{"id":"`+id+`"}`)))
	require.NoError(t, r.Commit(context.Background(), manifest(commit, run, id)))
}

func TestBeginRun_CommitAndPut_WritesExpectedLayout(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	r, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.NoError(t, err)
	defer r.Abort()

	require.NoError(t, r.PutResult("foo/bar", []byte(benchPayload)))
	require.NoError(t, r.PutGroup("foo", []byte(groupPayload)))
	assert.False(t, s.Exists(hashA, "bench1"), "not visible before Commit")

	require.NoError(t, r.Commit(ctx, manifest(hashA, "bench1", "foo/bar")))
	assert.True(t, s.Exists(hashA, "bench1"))
	assert.NoDirExists(t, r.StagingDir())

	runDir := s.RunDir(hashA, "bench1")
	b, err := os.ReadFile(filepath.Join(runDir, "foo", "bar.json"))
	require.NoError(t, err)
	assert.JSONEq(t, benchPayload, string(b))
	assert.True(t, strings.HasSuffix(string(b), "}\n"))

	b, err = os.ReadFile(filepath.Join(runDir, "foo", GroupFile))
	require.NoError(t, err)
	assert.JSONEq(t, groupPayload, string(b))

	m, err := s.ReadManifest(hashA, "bench1")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo/bar"}, m.Benchmarks)
	assert.JSONEq(t, `"x86_64"`, string(m.System["arch"]))

	ids, err := s.ListResults(hashA, "bench1")
	require.NoError(t, err)
	assert.Equal(t, m.Benchmarks, ids)
}

func TestBeginRun_Exists_ReturnsErrAlreadyExistsAndTouchesNothing(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	writeRun(t, s, hashA, "bench1", "x")

	_, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	entries, err := os.ReadDir(s.CommitDir(hashA))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bench1", entries[0].Name())
}

func TestBeginRun_InvalidArguments_ReturnsError(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	_, err := s.BeginRun(ctx, "nothash", "bench1", false)
	require.Error(t, err)
	_, err = s.BeginRun(ctx, hashA, "../escape", false)
	require.Error(t, err)
	_, err = s.BeginRun(ctx, hashA, ".hidden", false)
	require.Error(t, err)
	assert.NoDirExists(t, s.CommitDir(hashA))
}

func TestAbort_RemovesStagingAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	r, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.NoError(t, err)
	require.NoError(t, r.PutResult("foo/bar", []byte(benchPayload)))

	r.Abort()
	r.Abort()
	assert.NoDirExists(t, r.StagingDir())
	assert.False(t, s.Exists(hashA, "bench1"))
	assert.Error(t, r.PutResult("foo/baz", []byte(benchPayload)))
	assert.Error(t, r.Commit(ctx, manifest(hashA, "bench1", "foo/bar")))
}

func TestAbort_AfterCommit_NoOp(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	r, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.NoError(t, err)
	require.NoError(t, r.PutResult("foo/bar", []byte(benchPayload)))
	require.NoError(t, r.Commit(ctx, manifest(hashA, "bench1", "foo/bar")))

	r.Abort()
	assert.True(t, s.Exists(hashA, "bench1"))
	assert.FileExists(t, filepath.Join(s.RunDir(hashA, "bench1"), "foo", "bar.json"))
	assert.Error(t, r.Commit(ctx, manifest(hashA, "bench1", "foo/bar")))
}

func TestBeginRun_StaleStaging_Purged(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	const id = "0b7c5a8e-3f4d-4c1e-9a2b-6d8e0f1a2b3c"
	stale := filepath.Join(s.CommitDir(hashA), ".bench1."+id+".staging")
	require.NoError(t, os.MkdirAll(filepath.Join(stale, "foo"), 0755))
	other := filepath.Join(s.CommitDir(hashA), ".bench2."+id+".staging")
	require.NoError(t, os.MkdirAll(other, 0755))
	dotted := filepath.Join(s.CommitDir(hashA), ".bench1.x."+id+".staging")
	require.NoError(t, os.MkdirAll(dotted, 0755))

	r, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.NoError(t, err)
	defer r.Abort()
	assert.NoDirExists(t, stale)
	assert.DirExists(t, other, "staging dirs of other runs are left alone")
	assert.DirExists(t, dotted, "staging dirs of run bench1.x are left alone")
	assert.DirExists(t, r.StagingDir())
}

func TestBeginRun_GlobCharactersInRunName_Succeeds(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	for _, run := range []types.RunName{"bench[1", "bench*", "a?b"} {
		r, err := s.BeginRun(ctx, hashA, run, false)
		require.NoError(t, err, string(run))
		require.NoError(t, r.PutResult("foo/bar", []byte(benchPayload)))
		require.NoError(t, r.Commit(ctx, manifest(hashA, run, "foo/bar")))
		assert.True(t, s.Exists(hashA, run))
	}
	// A second begin purges with the same name and must not trip over it.
	r, err := s.BeginRun(ctx, hashA, "bench[1", true)
	require.NoError(t, err)
	r.Abort()
	assert.True(t, s.Exists(hashA, "bench[1"))
}

func TestIsStagingDir(t *testing.T) {
	const id = "0b7c5a8e-3f4d-4c1e-9a2b-6d8e0f1a2b3c"
	assert.True(t, isStagingDir(".a."+id+".staging", "a"))
	assert.True(t, isStagingDir(".a.b."+id+".staging", "a.b"))
	assert.False(t, isStagingDir(".a.b."+id+".staging", "a"))
	assert.False(t, isStagingDir(".a.dead-beef.staging", "a"))
	assert.False(t, isStagingDir("a", "a"))
}

func TestAbort_FirstRunOfCommit_RemovesCommitDir(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	r, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.NoError(t, err)
	require.NoError(t, r.PutResult("foo/bar", []byte(benchPayload)))
	r.Abort()
	assert.NoDirExists(t, s.CommitDir(hashA))
	commits, err := s.Commits()
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestAbort_OtherRunsPresent_CommitDirKept(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	writeRun(t, s, hashA, "bench2", "x")
	r, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.NoError(t, err)
	r.Abort()
	assert.True(t, s.Exists(hashA, "bench2"))
}

func TestBeginRun_Force_OldRunVisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	writeRun(t, s, hashA, "bench1", "old/case")

	r, err := s.BeginRun(ctx, hashA, "bench1", true)
	require.NoError(t, err)
	defer r.Abort()
	require.NoError(t, r.PutResult("new/case", []byte(`{}`)))
	assert.FileExists(t, filepath.Join(s.RunDir(hashA, "bench1"), "old", "case.json"))

	require.NoError(t, r.Commit(ctx, manifest(hashA, "bench1", "new/case")))
	ids, err := s.ListResults(hashA, "bench1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new/case"}, ids)
}

func TestBeginRun_ForceThenAbort_OldRunKept(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	writeRun(t, s, hashA, "bench1", "old/case")

	r, err := s.BeginRun(ctx, hashA, "bench1", true)
	require.NoError(t, err)
	require.NoError(t, r.PutResult("new/case", []byte(`{}`)))
	r.Abort()

	ids, err := s.ListResults(hashA, "bench1")
	require.NoError(t, err)
	assert.Equal(t, []string{"old/case"}, ids)
}

func TestPutResult_InvalidOrReservedID_ReturnsError(t *testing.T) {
	s := New(t.TempDir())
	r, err := s.BeginRun(context.Background(), hashA, "bench1", false)
	require.NoError(t, err)
	defer r.Abort()
	for _, id := range []types.BenchmarkID{"", "../x", "foo//bar", "run", "system_info", "foo/group", "foo/.bar"} {
		assert.Error(t, r.PutResult(id, []byte(`{}`)), string(id))
	}
	assert.Error(t, r.PutResult("foo/bar", []byte(`not json`)))
	assert.Error(t, r.PutGroup("../x", []byte(`{}`)))
}

func TestCommit_InvalidManifest_ReturnsErrorAndStagingKept(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	r, err := s.BeginRun(ctx, hashA, "bench1", false)
	require.NoError(t, err)
	defer r.Abort()

	err = r.Commit(ctx, manifest(hashB, "bench1"))
	require.Error(t, err)

	err = r.Commit(ctx, manifest(hashA, "bench1", "dup", "dup"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid manifest")
	assert.False(t, s.Exists(hashA, "bench1"))
}

func TestValidateManifest(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, ValidateManifest(ctx, []byte(`{"commit_hash":"`+string(hashA)+`","name":"n","benchmarks":[],"extra":1}`)))
	assert.Error(t, ValidateManifest(ctx, []byte(`{"commit_hash":"abc","name":"n","benchmarks":[]}`)))
	assert.Error(t, ValidateManifest(ctx, []byte(`{"commit_hash":"`+string(hashA)+`","name":"n"}`)))
	assert.Error(t, ValidateManifest(ctx, []byte(`{"commit_hash":"`+string(hashA)+`","name":".n","benchmarks":[]}`)))
}
