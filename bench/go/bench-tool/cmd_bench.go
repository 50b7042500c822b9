package main

import (
	"github.com/spf13/cobra"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/skerr"
)

// benchEnv provides the environment for the bench command.
type benchEnv struct {
	root           *rootEnv
	flagName       string
	flagForce      bool
	flagAllowDirty bool
}

// getBenchCmd returns the definition of the bench command.
func getBenchCmd(root *rootEnv) *cobra.Command {
	env := &benchEnv{root: root}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the commit checked out in the tracked repo",
		Long: `
Runs the benchmarks against the current HEAD of the tracked repo and stores
the results as a run with the given name. Does nothing if the run already
exists, unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: env.runBenchCmd,
	}
	cmd.Flags().StringVar(&env.flagName, "name", "", "Name of the machine or configuration, e.g. aorus.")
	cmd.Flags().BoolVar(&env.flagForce, "force", false, "Replace an existing run.")
	cmd.Flags().BoolVar(&env.flagAllowDirty, "allow-dirty", false, "Allow uncommitted changes in the tracked repo.")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (b *benchEnv) runBenchCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := b.root.setup(cmd)
	if err != nil {
		return err
	}
	if err := types.RunName(b.flagName).Validate(); err != nil {
		return skerr.Wrap(err)
	}
	if err := checkRepo(ctx, cfg.RepoDir, b.flagAllowDirty); err != nil {
		return err
	}
	ids, err := newRunner(cfg).Run(ctx, cfg.RepoDir, types.RunName(b.flagName), b.flagForce)
	if err != nil {
		return err
	}
	if ids != nil {
		printOK(cmd.OutOrStdout(), "Stored %d benchmarks as %s.", len(ids), b.flagName)
	}
	return nil
}
