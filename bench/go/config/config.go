// Package config holds the configuration of the benchmark tool.
package config

import (
	"time"

	"go.benchtrack.dev/infra/go/config"
	"go.benchtrack.dev/infra/go/git"
	"go.benchtrack.dev/infra/go/skerr"
)

// DefaultFetchAttempts is how many times "git fetch" is tried before a
// backfill gives up.
const DefaultFetchAttempts = 3

// Duration is a duration written as a string, e.g. "2h".
type Duration = config.Duration

// BenchCommand is the command that runs the benchmarks and writes events to
// stdout.
type BenchCommand struct {
	// Dir is the working directory, relative to the tracked repo.
	Dir string `json:"dir" optional:"true"`

	// Name of the executable.
	Name string `json:"name"`

	Args []string `json:"args" optional:"true"`

	// Timeout kills the command if it runs longer. No limit if zero.
	Timeout Duration `json:"timeout" optional:"true"`
}

// InstanceConfig is the configuration of a benchmark database.
type InstanceConfig struct {
	// RepoDir is the checkout of the tracked repo, usually a submodule.
	RepoDir string `json:"repo_dir"`

	// DBDir is the root of the database.
	DBDir string `json:"db_dir"`

	// Remote and Branch name the history that bench-missing walks.
	Remote string `json:"remote" optional:"true"`
	Branch string `json:"branch" optional:"true"`

	FetchAttempts int `json:"fetch_attempts" optional:"true"`

	Bench BenchCommand `json:"bench"`

	// GPUInfoCommand lists GPU adapters, one per line. GPU info is left out
	// of the manifest if empty.
	GPUInfoCommand []string `json:"gpu_info_command" optional:"true"`

	// AggregateOutput is where the aggregate command writes by default.
	AggregateOutput string `json:"aggregate_output" optional:"true"`
}

// Default returns the configuration used when no config file is given.
func Default() *InstanceConfig {
	return &InstanceConfig{
		RepoDir:       "ranim",
		DBDir:         "db",
		Remote:        git.DefaultRemote,
		Branch:        git.MainBranch,
		FetchAttempts: DefaultFetchAttempts,
		Bench: BenchCommand{
			Dir:  "benches",
			Name: "cargo",
			Args: []string{"criterion", "--message-format=json"},
		},
		AggregateOutput: "web/public/all-data.json",
	}
}

// Load reads the config at path on top of Default().
func Load(path string) (*InstanceConfig, error) {
	cfg := Default()
	if err := config.LoadFromJSON5(cfg, path); err != nil {
		return nil, skerr.Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, skerr.Wrapf(err, "validating %s", path)
	}
	return cfg, nil
}

// Validate checks the values that LoadFromJSON5 can't.
func (c *InstanceConfig) Validate() error {
	if err := config.CheckRequired(c); err != nil {
		return skerr.Wrap(err)
	}
	if c.FetchAttempts < 0 {
		return skerr.Fmt("fetch_attempts must not be negative, got %d", c.FetchAttempts)
	}
	if c.Bench.Timeout.Duration < 0 {
		return skerr.Fmt("bench.timeout must not be negative, got %s", c.Bench.Timeout.Duration)
	}
	if c.Remote == "" {
		c.Remote = git.DefaultRemote
	}
	if c.Branch == "" {
		c.Branch = git.MainBranch
	}
	if c.FetchAttempts == 0 {
		c.FetchAttempts = DefaultFetchAttempts
	}
	return nil
}

// TimeoutDuration returns the bench command timeout, zero for no limit.
func (b BenchCommand) TimeoutDuration() time.Duration {
	return b.Timeout.Duration
}
