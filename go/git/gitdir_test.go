package git

import (
	"context"
	"errors"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.benchtrack.dev/infra/go/exec"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func mockGit(t *testing.T, outputs map[string]string, errs map[string]error) (context.Context, *exec.CommandCollector) {
	mock := &exec.CommandCollector{}
	mock.SetDelegateRun(exec.Scripted{Outputs: outputs, Errors: errs}.Run)
	return exec.NewContext(context.Background(), mock.Run), mock
}

func TestRevParse_ValidHash_ReturnsTrimmedHash(t *testing.T) {
	ctx, mock := mockGit(t, map[string]string{"git rev-parse HEAD": hashA + "\n"}, nil)
	got, err := GitDir("/repo").Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashA, got)
	assert.Equal(t, "/repo", mock.Commands()[0].Dir)
}

func TestRevParse_ShortOutput_ReturnsError(t *testing.T) {
	ctx, _ := mockGit(t, map[string]string{"git rev-parse HEAD": "abc123\n"}, nil)
	_, err := GitDir("/repo").Head(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid commit hash")
}

func TestLog_ParsesHashAndSubject(t *testing.T) {
	ctx, mock := mockGit(t, map[string]string{
		"git log": hashB + " Add thing (#12)\n" + hashA + " Initial commit\n",
	}, nil)
	commits, err := GitDir("/repo").Log(ctx, "origin/main")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, ShortCommit{Hash: hashB, Subject: "Add thing (#12)"}, *commits[0])
	assert.Equal(t, ShortCommit{Hash: hashA, Subject: "Initial commit"}, *commits[1])
	assert.Equal(t, []string{"git log origin/main --oneline --format=%H %s"}, mock.CommandLines())
}

func TestLog_GarbageLine_ReturnsError(t *testing.T) {
	ctx, _ := mockGit(t, map[string]string{"git log": "not-a-hash subject\n"}, nil)
	_, err := GitDir("/repo").Log(ctx, "origin/main")
	require.Error(t, err)
}

func TestFetch_Failure_IsWrapped(t *testing.T) {
	ctx, _ := mockGit(t, nil, map[string]error{"git fetch": errors.New("network down")})
	err := GitDir("/repo").Fetch(ctx, DefaultRemote)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching origin")
	assert.Contains(t, err.Error(), "network down")
}

func TestEnsureClean(t *testing.T) {
	ctx, _ := mockGit(t, map[string]string{"git status --porcelain": ""}, nil)
	require.NoError(t, GitDir("/repo").EnsureClean(ctx))

	ctx, _ = mockGit(t, map[string]string{"git status --porcelain": " M benches/foo.rs\n"}, nil)
	err := GitDir("/repo").EnsureClean(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "benches/foo.rs")
}

func TestEnsureInitialized(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, GitDir(dir).EnsureInitialized())

	// Submodules have a .git file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("gitdir: ../.git/modules/x\n"), 0644))
	require.NoError(t, GitDir(dir).EnsureInitialized())
}

func TestGitDir_RealRepo_CheckoutAndLog(t *testing.T) {
	if _, err := osexec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	dir := t.TempDir()
	g := GitDir(dir)
	run := func(args ...string) {
		_, err := g.Git(ctx, args...)
		require.NoError(t, err)
	}
	run("init", "-q", "-b", MainBranch)
	run("config", "user.email", "bench@example.com")
	run("config", "user.name", "Bench")
	for _, msg := range []string{"First", "Second (#2)"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte(msg), 0644))
		run("add", "file")
		run("commit", "-q", "-m", msg)
	}

	commits, err := g.Log(ctx, MainBranch)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "Second (#2)", commits[0].Subject)

	require.NoError(t, g.Checkout(ctx, commits[1].Hash))
	head, err := g.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, commits[1].Hash, head)
	require.NoError(t, g.EnsureClean(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("dirty"), 0644))
	err = g.EnsureClean(ctx)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "file"))
}
