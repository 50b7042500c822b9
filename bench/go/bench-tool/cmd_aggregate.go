package main

import (
	"github.com/spf13/cobra"
	"go.benchtrack.dev/infra/bench/go/aggregate"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/go/skerr"
)

// aggregateEnv provides the environment for the aggregate command.
type aggregateEnv struct {
	root       *rootEnv
	flagOutput string
}

// getAggregateCmd returns the definition of the aggregate command.
func getAggregateCmd(root *rootEnv) *cobra.Command {
	env := &aggregateEnv{root: root}
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Write every mean in the database to a single JSON file",
		Args:  cobra.NoArgs,
		RunE:  env.runAggregateCmd,
	}
	cmd.Flags().StringVarP(&env.flagOutput, "output", "o", "", "Output file, overrides aggregate_output.")
	return cmd
}

func (a *aggregateEnv) runAggregateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := a.root.setup(cmd)
	if err != nil {
		return err
	}
	out := cfg.AggregateOutput
	if a.flagOutput != "" {
		out = a.flagOutput
	}
	if out == "" {
		return skerr.Fmt("no output file, pass --output or set aggregate_output")
	}
	data, err := aggregate.Scan(runstore.New(cfg.DBDir))
	if err != nil {
		return err
	}
	if err := aggregate.Write(out, data); err != nil {
		return err
	}
	printOK(cmd.OutOrStdout(), "Wrote %d commits to %s.", len(data.Commits), out)
	return nil
}
