package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "origin", c.Remote)
	assert.Equal(t, "main", c.Branch)
	assert.Equal(t, []string{"criterion", "--message-format=json"}, c.Bench.Args)
	assert.Zero(t, c.Bench.TimeoutDuration())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "custom.json5"))
	require.NoError(t, err)
	assert.Equal(t, "../project", c.RepoDir)
	assert.Equal(t, "/data/bench-db", c.DBDir)
	assert.Equal(t, "origin", c.Remote, "default kept")
	assert.Equal(t, "trunk", c.Branch)
	assert.Equal(t, DefaultFetchAttempts, c.FetchAttempts)
	assert.Equal(t, BenchCommand{
		Dir:     ".",
		Name:    "sh",
		Args:    []string{"-c", "./run-benches.sh"},
		Timeout: Duration{Duration: 45 * time.Minute},
	}, c.Bench)
	assert.Equal(t, []string{"nvidia-smi", "--query-gpu=name", "--format=csv,noheader"}, c.GPUInfoCommand)
	assert.Equal(t, "web/public/all-data.json", c.AggregateOutput)
}

func TestLoad_EmptyBenchName_Error(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "no_bench_name.json5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name")
}

func TestValidate_FillsEmptyOptionals(t *testing.T) {
	c := Default()
	c.Remote = ""
	c.Branch = ""
	c.FetchAttempts = 0
	require.NoError(t, c.Validate())
	assert.Equal(t, "origin", c.Remote)
	assert.Equal(t, "main", c.Branch)
	assert.Equal(t, DefaultFetchAttempts, c.FetchAttempts)
}

func TestValidate_Negative_Error(t *testing.T) {
	c := Default()
	c.FetchAttempts = -1
	assert.Error(t, c.Validate())

	c = Default()
	c.Bench.Timeout = Duration{Duration: -time.Second}
	assert.Error(t, c.Validate())
}
