package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/imishinist/mlvc-cli/internal/models"
)

const bytesPerGB = 1e9

// Collector produces host telemetry. Collect may return partial stats
// together with an error; a nil result means nothing could be read.
type Collector interface {
	Collect(ctx context.Context) (*models.SystemStats, error)
	StaticInfo(ctx context.Context) (models.SystemInfo, error)
}

// HostCollector reads CPU and memory through gopsutil and GPUs through a
// GPUReader.
type HostCollector struct {
	gpus GPUReader
}

func NewHostCollector(gpus GPUReader) *HostCollector {
	return &HostCollector{gpus: gpus}
}

func (c *HostCollector) Collect(ctx context.Context) (*models.SystemStats, error) {
	// A zero interval reports utilisation since the previous call.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu utilisation: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory utilisation: %w", err)
	}

	stats := &models.SystemStats{
		CPU: models.CPUStats{Memory: vm.UsedPercent},
		GPU: []models.GPUStats{},
	}
	if len(percents) > 0 {
		stats.CPU.Percentage = percents[0]
	}

	if c.gpus != nil {
		gpus, err := c.gpus.Read(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to read gpu stats: %w", err)
		}
		if gpus != nil {
			stats.GPU = gpus
		}
	}
	return stats, nil
}

// StaticInfo describes the host once: OS, CPU topology, installed memory
// and GPU inventory. Missing CPU details are left zero.
func (c *HostCollector) StaticInfo(ctx context.Context) (models.SystemInfo, error) {
	var info models.SystemInfo

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to read host info: %w", err)
	}
	info.OS = models.OSInfo{
		System:   hostInfo.OS,
		Machine:  hostInfo.KernelArch,
		Platform: strings.TrimSpace(hostInfo.Platform + " " + hostInfo.PlatformVersion),
		Version:  hostInfo.PlatformVersion,
		Kernel:   hostInfo.KernelVersion,
		Hostname: hostInfo.Hostname,
	}

	var errs []error
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.CPU.Cores.Physical = physical
	} else {
		errs = append(errs, err)
	}
	if logical, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPU.Cores.Logical = logical
	} else {
		errs = append(errs, err)
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPU.Model = cpus[0].ModelName
		info.CPU.Freq = frequencyRange(cpus)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to read installed memory: %w", err)
	}
	info.RAM.Installed = float64(vm.Total) / bytesPerGB

	info.GPUs = []models.GPUInfo{}
	if c.gpus != nil {
		gpus, err := c.gpus.Read(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, gpu := range gpus {
			info.GPUs = append(info.GPUs, models.GPUInfo{
				Name:        gpu.Name,
				UUID:        gpu.UUID,
				MemoryTotal: gpu.MemoryTotal,
				Driver:      gpu.Driver,
				Serial:      gpu.Serial,
			})
		}
	}

	if len(errs) > 0 {
		return info, fmt.Errorf("incomplete host info: %w", errors.Join(errs...))
	}
	return info, nil
}

// frequencyRange returns the lowest and highest per-CPU frequency gopsutil
// reports (MHz).
func frequencyRange(cpus []cpu.InfoStat) models.CPUFreq {
	freq := models.CPUFreq{Min: cpus[0].Mhz, Max: cpus[0].Mhz}
	for _, c := range cpus[1:] {
		if c.Mhz < freq.Min {
			freq.Min = c.Mhz
		}
		if c.Mhz > freq.Max {
			freq.Max = c.Mhz
		}
	}
	return freq
}
