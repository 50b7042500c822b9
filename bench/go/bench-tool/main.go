// bench-tool benchmarks commits of the tracked repo and maintains the
// benchmark database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.benchtrack.dev/infra/bench/go/config"
	"go.benchtrack.dev/infra/bench/go/runner"
	"go.benchtrack.dev/infra/bench/go/runstore"
	"go.benchtrack.dev/infra/bench/go/sysinfo"
	"go.benchtrack.dev/infra/go/exec"
	"go.benchtrack.dev/infra/go/git"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
)

// rootEnv holds the flags shared by every subcommand.
type rootEnv struct {
	flagConfig      string
	flagRepo        string
	flagDB          string
	flagLogToStderr bool
	flagVerbose     bool
	flagGPUInfo     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	sklog.Flush()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	env := &rootEnv{}
	root := &cobra.Command{
		Use:   "bench-tool",
		Short: "Benchmark database for the tracked repo.",
		Long: `Runs the benchmarks of the tracked repo and stores the results in a
database keyed by commit and machine name:

	bench-tool bench --name=aorus
	bench-tool bench-missing --name=aorus --dry-run
	bench-tool sync
	bench-tool aggregate
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&env.flagConfig, "config", "", "JSON5 config file. Built in defaults are used if empty.")
	pf.StringVar(&env.flagRepo, "repo", "", "Checkout of the tracked repo, overrides repo_dir.")
	pf.StringVar(&env.flagDB, "db", "", "Database directory, overrides db_dir.")
	pf.BoolVar(&env.flagLogToStderr, "logtostderr", true, "Log to stderr. If false nothing is logged.")
	pf.BoolVarP(&env.flagVerbose, "verbose", "v", false, "Include debug logs.")
	pf.StringVar(&env.flagGPUInfo, "gpu-info-command", "", "Command listing GPU adapters one per line, overrides gpu_info_command. Shell quoting is honored.")

	root.AddCommand(
		getBenchCmd(env),
		getBenchMissingCmd(env),
		getSyncCmd(env),
		getAggregateCmd(env),
	)
	return root
}

// setup configures logging and returns the config for cmd.
func (r *rootEnv) setup(cmd *cobra.Command) (*config.InstanceConfig, error) {
	if r.flagLogToStderr {
		sklog.UseStderr(r.flagVerbose)
	} else {
		sklog.UseNop()
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		sklog.Debugf("Flags: --%s=%v", f.Name, f.Value)
	})

	cfg := config.Default()
	if r.flagConfig != "" {
		var err error
		cfg, err = config.Load(r.flagConfig)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	if r.flagRepo != "" {
		cfg.RepoDir = r.flagRepo
	}
	if r.flagDB != "" {
		cfg.DBDir = r.flagDB
	}
	if r.flagGPUInfo != "" {
		c, err := exec.ParseCommand(r.flagGPUInfo)
		if err != nil {
			return nil, skerr.Wrapf(err, "--gpu-info-command")
		}
		cfg.GPUInfoCommand = append([]string{c.Name}, c.Args...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	sklog.Debugf("Config:\n%s", spew.Sdump(cfg))
	return cfg, nil
}

// checkRepo returns an error if the tracked repo isn't ready to be
// benchmarked.
func checkRepo(ctx context.Context, repoDir string, allowDirty bool) error {
	checkout := git.GitDir(repoDir)
	if err := checkout.EnsureInitialized(); err != nil {
		return skerr.Wrap(err)
	}
	if allowDirty {
		return nil
	}
	return skerr.Wrap(checkout.EnsureClean(ctx))
}

func newRunner(cfg *config.InstanceConfig) *runner.Runner {
	store := runstore.New(cfg.DBDir)
	return runner.New(store, store.IndexPath(), sysinfo.Host{GPUInfoCommand: cfg.GPUInfoCommand}, cfg.Bench)
}

// printFailures lists failed items in red.
func printFailures(w io.Writer, what string, failed []string) {
	if len(failed) == 0 {
		return
	}
	red := color.New(color.FgRed)
	red.Fprintf(w, "%d %s failed:\n", len(failed), what)
	for _, f := range failed {
		red.Fprintf(w, "  %s\n", f)
	}
}

func printOK(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintln(w, fmt.Sprintf(format, args...))
}
