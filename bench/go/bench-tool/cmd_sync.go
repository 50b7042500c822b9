package main

import (
	"github.com/spf13/cobra"
	"go.benchtrack.dev/infra/bench/go/reconcile"
	"go.benchtrack.dev/infra/bench/go/runstore"
)

// syncEnv provides the environment for the sync command.
type syncEnv struct {
	root          *rootEnv
	flagSkipIndex bool
}

// getSyncCmd returns the definition of the sync command.
func getSyncCmd(root *rootEnv) *cobra.Command {
	env := &syncEnv{root: root}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild run manifests and db.json from the result files",
		Long: `
Rewrites run.json of every run from the result files present on disk, then
rebuilds db.json from the repaired runs. Runs that can't be repaired are
listed and left alone.`,
		Args: cobra.NoArgs,
		RunE: env.runSyncCmd,
	}
	cmd.Flags().BoolVar(&env.flagSkipIndex, "skip-index", false, "Don't rebuild db.json.")
	return cmd
}

func (s *syncEnv) runSyncCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := s.root.setup(cmd)
	if err != nil {
		return err
	}
	store := runstore.New(cfg.DBDir)
	res, err := reconcile.Run(cmd.Context(), store, store.IndexPath(), reconcile.Options{SkipIndex: s.flagSkipIndex})
	if err != nil {
		return err
	}
	printOK(cmd.OutOrStdout(), "Synced %d runs (%d rewritten).", res.Synced, res.Rewritten)
	printFailures(cmd.OutOrStdout(), "runs", res.Failed)
	return nil
}
