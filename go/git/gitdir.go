package git

/*
	Thin wrapper around a local git working tree.
*/

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.benchtrack.dev/infra/go/exec"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/util"
)

const (
	// MainBranch is the branch tracked by default.
	MainBranch = "main"
	// DefaultRemote is the name of the default remote repository.
	DefaultRemote = "origin"
)

// ShortCommit is a commit hash and the first line of its message.
type ShortCommit struct {
	Hash    string
	Subject string
}

// GitDir is a directory containing a git working tree, in which one may run
// git commands.
type GitDir string

// Dir returns the working directory of the GitDir.
func (g GitDir) Dir() string {
	return string(g)
}

// Git runs the given git command in the GitDir and returns its stdout.
func (g GitDir) Git(ctx context.Context, cmd ...string) (string, error) {
	return exec.RunCwd(ctx, g.Dir(), append([]string{"git"}, cmd...)...)
}

// EnsureInitialized returns an error if the directory is not a git working
// tree. For a submodule .git is a file rather than a directory, so either is
// accepted.
func (g GitDir) EnsureInitialized() error {
	if _, err := os.Stat(filepath.Join(g.Dir(), ".git")); err != nil {
		if os.IsNotExist(err) {
			return skerr.Fmt("%s is not initialized, run `git submodule update --init --recursive`", g.Dir())
		}
		return skerr.Wrapf(err, "checking %s", g.Dir())
	}
	return nil
}

// RevParse runs "git rev-parse <name>" and returns the result.
func (g GitDir) RevParse(ctx context.Context, args ...string) (string, error) {
	out, err := g.Git(ctx, append([]string{"rev-parse"}, args...)...)
	if err != nil {
		return "", err
	}
	// Ensure that we got a single, 40-character commit hash.
	split := strings.Fields(out)
	if len(split) != 1 {
		return "", skerr.Fmt("Unable to parse commit hash from output: %s", out)
	}
	if !util.ValidateCommit(split[0]) {
		return "", skerr.Fmt("rev-parse returned invalid commit hash: %s", out)
	}
	return split[0], nil
}

// Head returns the commit hash currently checked out.
func (g GitDir) Head(ctx context.Context) (string, error) {
	return g.RevParse(ctx, "HEAD")
}

// Fetch runs "git fetch <remote>".
func (g GitDir) Fetch(ctx context.Context, remote string) error {
	if _, err := g.Git(ctx, "fetch", remote); err != nil {
		return skerr.Wrapf(err, "fetching %s", remote)
	}
	return nil
}

// Log returns the commits reachable from ref, newest first.
func (g GitDir) Log(ctx context.Context, ref string) ([]*ShortCommit, error) {
	out, err := g.Git(ctx, "log", ref, "--oneline", "--format=%H %s")
	if err != nil {
		return nil, skerr.Wrapf(err, "reading log of %s", ref)
	}
	return parseLog(out)
}

func parseLog(out string) ([]*ShortCommit, error) {
	var rv []*ShortCommit
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		hash, subject, _ := strings.Cut(line, " ")
		if !util.ValidateCommit(hash) {
			return nil, skerr.Fmt("invalid commit hash in log line %q", line)
		}
		rv = append(rv, &ShortCommit{Hash: hash, Subject: subject})
	}
	return rv, nil
}

// Checkout runs "git checkout <ref>".
func (g GitDir) Checkout(ctx context.Context, ref string) error {
	if _, err := g.Git(ctx, "checkout", ref); err != nil {
		return skerr.Wrapf(err, "checking out %s", ref)
	}
	return nil
}

// Status returns the output of "git status --porcelain".
func (g GitDir) Status(ctx context.Context) (string, error) {
	return g.Git(ctx, "status", "--porcelain")
}

// EnsureClean returns an error listing the modified files if the working tree
// has uncommitted changes.
func (g GitDir) EnsureClean(ctx context.Context) error {
	status, err := g.Status(ctx)
	if err != nil {
		return skerr.Wrap(err)
	}
	if strings.TrimSpace(status) != "" {
		return skerr.Fmt("working tree %s has uncommitted changes, clean it or pass --allow-dirty:\n%s", g.Dir(), status)
	}
	return nil
}
