// Package backfill benchmarks the merged pull requests of the tracked repo
// that have no results yet.
//
// The backfill owns the checkout for its whole duration: it checks out each
// commit in turn and nothing else may change the working tree meanwhile.
package backfill

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/olekukonko/tablewriter"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/git"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
	"go.benchtrack.dev/infra/go/timer"
)

const (
	// DefaultFetchAttempts is used if Options.FetchAttempts is zero.
	DefaultFetchAttempts = 3

	fetchInitialInterval = 2 * time.Second
	fetchMaxInterval     = 30 * time.Second
)

// prMergeRegex matches the "(#123)" suffix that merged pull requests carry in
// their subject.
var prMergeRegex = regexp.MustCompile(`\(#[0-9]+\)$`)

// IsPullRequestMerge returns true if subject is the subject of a merged pull
// request, i.e. it ends in "(#<number>)".
func IsPullRequestMerge(subject string) bool {
	return prMergeRegex.MatchString(subject)
}

// MissingCommits returns the commits that need to be benchmarked, in the
// order given. has reports whether a commit already has results. With force
// every commit is returned.
func MissingCommits(commits []*git.ShortCommit, has func(hash string) bool, force bool) []*git.ShortCommit {
	rv := make([]*git.ShortCommit, 0, len(commits))
	for _, c := range commits {
		if force || !has(c.Hash) {
			rv = append(rv, c)
		}
	}
	return rv
}

// RunFunc benchmarks whatever is checked out and stores it as runName.
type RunFunc func(ctx context.Context, runName types.RunName, force bool) error

// Options for a single backfill.
type Options struct {
	RunName types.RunName
	// Force re-runs commits that already have results.
	Force bool
	// DryRun prints the commits that would be benchmarked and stops.
	DryRun bool
	Remote string
	Branch string
	// FetchAttempts bounds the number of times "git fetch" is tried.
	FetchAttempts int
}

// Summary is the outcome of a backfill. Hashes are listed oldest first.
type Summary struct {
	Attempted []string
	Succeeded []string
	Failed    []string
}

// Backfiller benchmarks missing commits one at a time.
type Backfiller struct {
	checkout git.GitDir
	store    *runstore.Store
	run      RunFunc
	out      io.Writer

	// retryInterval is the first delay between fetch attempts.
	retryInterval time.Duration
}

// New returns a Backfiller that checks out commits in checkout, looks for
// existing results in store and calls run for each missing commit. Dry run
// output is written to out.
func New(checkout git.GitDir, store *runstore.Store, run RunFunc, out io.Writer) *Backfiller {
	return &Backfiller{
		checkout:      checkout,
		store:         store,
		run:           run,
		out:           out,
		retryInterval: fetchInitialInterval,
	}
}

// Run performs the backfill. Failures for individual commits are logged and
// reported in the Summary; only failures that prevent the whole backfill
// are returned as errors.
func (b *Backfiller) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.RunName.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	if opts.Remote == "" {
		opts.Remote = git.DefaultRemote
	}
	if opts.Branch == "" {
		opts.Branch = git.MainBranch
	}
	if opts.FetchAttempts <= 0 {
		opts.FetchAttempts = DefaultFetchAttempts
	}

	if err := b.fetch(ctx, opts.Remote, opts.FetchAttempts); err != nil {
		return nil, skerr.Wrap(err)
	}
	ref := opts.Remote + "/" + opts.Branch
	log, err := b.checkout.Log(ctx, ref)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var merges []*git.ShortCommit
	for _, c := range log {
		if IsPullRequestMerge(c.Subject) {
			merges = append(merges, c)
		}
	}
	missing := MissingCommits(merges, func(hash string) bool {
		return b.store.Exists(types.CommitHash(hash), opts.RunName)
	}, opts.Force)

	summary := &Summary{}
	if len(missing) == 0 {
		sklog.Infof("All %d merged pull requests on %s already have %s results. Nothing to do.", len(merges), ref, opts.RunName)
		return summary, nil
	}
	// The log is newest first; benchmark oldest first.
	reverse(missing)
	sklog.Infof("Found %d of %d merged pull requests on %s without %s results.", len(missing), len(merges), ref, opts.RunName)

	if opts.DryRun {
		printTable(b.out, missing)
		return summary, nil
	}

	total := timer.New(fmt.Sprintf("Benchmarking %d commits", len(missing)))
	for i, c := range missing {
		if err := ctx.Err(); err != nil {
			sklog.Warningf("Stopping after %d of %d commits: %s", i, len(missing), err)
			break
		}
		short := types.CommitHash(c.Hash).Short()
		summary.Attempted = append(summary.Attempted, c.Hash)
		sklog.Infof("[%d/%d] %s %s (%s elapsed)", i+1, len(missing), short, c.Subject, timer.Format(total.Elapsed()))
		if err := b.checkout.Checkout(ctx, c.Hash); err != nil {
			sklog.Errorf("[%d/%d] Failed to check out %s, skipping: %s", i+1, len(missing), short, err)
			summary.Failed = append(summary.Failed, c.Hash)
			continue
		}
		if err := b.run(ctx, opts.RunName, opts.Force); err != nil {
			sklog.Errorf("[%d/%d] Benchmark failed for %s, continuing: %s", i+1, len(missing), short, err)
			summary.Failed = append(summary.Failed, c.Hash)
			continue
		}
		summary.Succeeded = append(summary.Succeeded, c.Hash)
	}
	total.Stop()

	if len(summary.Attempted) == 0 {
		return summary, skerr.Wrap(ctx.Err())
	}
	last := summary.Attempted[len(summary.Attempted)-1]
	sklog.Infof("Restoring %s to %s", b.checkout.Dir(), types.CommitHash(last).Short())
	if err := b.checkout.Checkout(context.WithoutCancel(ctx), last); err != nil {
		return summary, skerr.Wrapf(err, "restoring checkout")
	}
	sklog.Infof("Done: %d succeeded, %d failed.", len(summary.Succeeded), len(summary.Failed))
	return summary, nil
}

// fetch runs "git fetch", retrying with exponential backoff.
func (b *Backfiller) fetch(ctx context.Context, remote string, attempts int) error {
	sklog.Infof("Fetching %s...", remote)
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     b.retryInterval,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         fetchMaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		sklog.Warningf("Fetching %s failed, retrying in %s: %s", remote, wait, err)
	}
	err := backoff.RetryNotify(func() error {
		return b.checkout.Fetch(ctx, remote)
	}, policy, notify)
	return skerr.Wrapf(err, "giving up after %d attempts", attempts)
}

func reverse(commits []*git.ShortCommit) {
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
}

func printTable(w io.Writer, commits []*git.ShortCommit) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Commit", "Subject"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for i, c := range commits {
		table.Append([]string{fmt.Sprint(i + 1), types.CommitHash(c.Hash).Short(), c.Subject})
	}
	table.Render()
}
