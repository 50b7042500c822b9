// Package sysinfo describes the machine benchmarks are run on.
package sysinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
	"go.benchtrack.dev/infra/bench/go/types"
	"go.benchtrack.dev/infra/go/exec"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
)

// Collector returns the description of the current machine that gets stored
// in each run manifest.
type Collector interface {
	Collect(ctx context.Context) (types.SystemInfo, error)
}

// CPU describes a single logical CPU.
type CPU struct {
	Name      string `json:"name"`
	VendorID  string `json:"vendor_id"`
	Brand     string `json:"brand"`
	Frequency uint64 `json:"frequency"`
}

// GPUAdapter is one line of output from the GPU info command.
type GPUAdapter struct {
	Name string `json:"name"`
}

// Info is the typed form of the system info written by Host.
type Info struct {
	KernelVersion  string       `json:"kernel_version"`
	OSVersion      string       `json:"os_version"`
	DistributionID string       `json:"distribution_id"`
	Arch           string       `json:"arch"`
	Memory         uint64       `json:"memory"`
	CPUs           []CPU        `json:"cpus"`
	GPUAdapters    []GPUAdapter `json:"gpu_adapters,omitempty"`
}

// ToSystemInfo converts info into the untyped form stored in manifests.
func (i Info) ToSystemInfo() (types.SystemInfo, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	var rv types.SystemInfo
	if err := json.Unmarshal(b, &rv); err != nil {
		return nil, skerr.Wrap(err)
	}
	return rv, nil
}

// Host collects system info about the machine this process runs on.
type Host struct {
	// GPUInfoCommand, if not empty, is run to list GPU adapters, one per line
	// of output.
	GPUInfoCommand []string
}

// Collect implements Collector.
func (h Host) Collect(ctx context.Context) (types.SystemInfo, error) {
	info, err := h.Info(ctx)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return info.ToSystemInfo()
}

// Info returns the typed system info.
func (h Host) Info(ctx context.Context) (*Info, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "querying host info")
	}
	cpus, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "querying cpu info")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "querying memory")
	}
	rv := &Info{
		KernelVersion:  hi.KernelVersion,
		OSVersion:      hi.PlatformVersion,
		DistributionID: hi.Platform,
		Arch:           hi.KernelArch,
		Memory:         vm.Total,
		CPUs:           make([]CPU, 0, len(cpus)),
	}
	for _, c := range cpus {
		rv.CPUs = append(rv.CPUs, CPU{
			Name:      fmt.Sprintf("cpu%d", c.CPU),
			VendorID:  c.VendorID,
			Brand:     strings.TrimSpace(c.ModelName),
			Frequency: uint64(c.Mhz),
		})
	}
	if len(h.GPUInfoCommand) > 0 {
		rv.GPUAdapters, err = gpuAdapters(ctx, h.GPUInfoCommand)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	sklog.Infof("System: %s %s (%s), %d CPUs, %s memory, %d GPU adapters", rv.DistributionID, rv.OSVersion, rv.Arch, len(rv.CPUs), humanize.IBytes(rv.Memory), len(rv.GPUAdapters))
	return rv, nil
}

// gpuQueryTimeout bounds the GPU info command, which talks to drivers that
// sometimes hang.
const gpuQueryTimeout = 30 * time.Second

func gpuAdapters(ctx context.Context, command []string) ([]GPUAdapter, error) {
	out, err := exec.RunCommand(ctx, &exec.Command{
		Name:    command[0],
		Args:    command[1:],
		Timeout: gpuQueryTimeout,
	})
	if err != nil {
		return nil, skerr.Wrapf(err, "listing GPU adapters")
	}
	return parseGPUAdapters(out), nil
}

func parseGPUAdapters(out string) []GPUAdapter {
	var rv []GPUAdapter
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rv = append(rv, GPUAdapter{Name: line})
		}
	}
	return rv
}

// Static is a Collector that always returns the same info.
type Static types.SystemInfo

// Collect implements Collector.
func (s Static) Collect(context.Context) (types.SystemInfo, error) {
	return types.SystemInfo(s), nil
}

var _ Collector = Host{}
var _ Collector = Static{}
