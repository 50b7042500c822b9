package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.benchtrack.dev/infra/bench/go/backfill"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/git"
	"go.benchtrack.dev/infra/go/skerr"
)

// benchMissingEnv provides the environment for the bench-missing command.
type benchMissingEnv struct {
	root           *rootEnv
	flagName       string
	flagForce      bool
	flagDryRun     bool
	flagAllowDirty bool
}

// getBenchMissingCmd returns the definition of the bench-missing command.
func getBenchMissingCmd(root *rootEnv) *cobra.Command {
	env := &benchMissingEnv{root: root}
	cmd := &cobra.Command{
		Use:   "bench-missing",
		Short: "Benchmark every merged pull request that has no results",
		Long: `
Fetches the tracked repo, finds the merged pull requests on the tracked branch
that have no run with the given name and benchmarks them, oldest first.
A failure on one commit doesn't stop the others. The tracked repo is left
checked out at the last commit attempted.`,
		Args: cobra.NoArgs,
		RunE: env.runBenchMissingCmd,
	}
	cmd.Flags().StringVar(&env.flagName, "name", "", "Name of the machine or configuration, e.g. aorus.")
	cmd.Flags().BoolVar(&env.flagForce, "force", false, "Re-run commits that already have results.")
	cmd.Flags().BoolVar(&env.flagDryRun, "dry-run", false, "Only list the commits that would be benchmarked.")
	cmd.Flags().BoolVar(&env.flagAllowDirty, "allow-dirty", false, "Allow uncommitted changes in the tracked repo.")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (b *benchMissingEnv) runBenchMissingCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := b.root.setup(cmd)
	if err != nil {
		return err
	}
	if err := checkRepo(ctx, cfg.RepoDir, b.flagAllowDirty); err != nil {
		return err
	}
	r := newRunner(cfg)
	runFn := func(ctx context.Context, name types.RunName, force bool) error {
		_, err := r.Run(ctx, cfg.RepoDir, name, force)
		return err
	}
	bf := backfill.New(git.GitDir(cfg.RepoDir), runstore.New(cfg.DBDir), runFn, cmd.OutOrStdout())
	summary, err := bf.Run(ctx, backfill.Options{
		RunName:       types.RunName(b.flagName),
		Force:         b.flagForce,
		DryRun:        b.flagDryRun,
		Remote:        cfg.Remote,
		Branch:        cfg.Branch,
		FetchAttempts: cfg.FetchAttempts,
	})
	if summary != nil && len(summary.Attempted) > 0 {
		printOK(cmd.OutOrStdout(), "Benchmarked %d of %d commits.", len(summary.Succeeded), len(summary.Attempted))
		printFailures(cmd.OutOrStdout(), "commits", summary.Failed)
	}
	if err != nil {
		return err
	}
	if summary != nil && len(summary.Failed) > 0 {
		return skerr.Fmt("%d of %d commits failed", len(summary.Failed), len(summary.Attempted))
	}
	return nil
}
