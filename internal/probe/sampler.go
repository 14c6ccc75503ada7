package probe

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type Sample struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

type SystemSampler struct {
	cpuInterval time.Duration
	diskPath    string

	// Collection functions for mocking
	getCPUPercent func(context.Context, time.Duration, bool) ([]float64, error)
	getMemStats   func(context.Context) (*mem.VirtualMemoryStat, error)
	getDiskUsage  func(context.Context, string) (*disk.UsageStat, error)
}

func NewSystemSampler(cpuInterval time.Duration, diskPath string) *SystemSampler {
	return &SystemSampler{
		cpuInterval:   cpuInterval,
		diskPath:      diskPath,
		getCPUPercent: cpu.PercentWithContext,
		getMemStats:   mem.VirtualMemoryWithContext,
		getDiskUsage:  disk.UsageWithContext,
	}
}

// Sample reads CPU, memory and disk usage. Any failed read fails the sample.
func (s *SystemSampler) Sample(ctx context.Context) (Sample, error) {
	var out Sample

	pcts, err := s.getCPUPercent(ctx, s.cpuInterval, false)
	if err != nil {
		return out, fmt.Errorf("%w: cpu: %v", ErrSample, err)
	}
	if len(pcts) == 0 {
		return out, fmt.Errorf("%w: cpu: no data returned", ErrSample)
	}
	out.CPUPercent = pcts[0]

	vm, err := s.getMemStats(ctx)
	if err != nil {
		return out, fmt.Errorf("%w: memory: %v", ErrSample, err)
	}
	out.MemoryPercent = vm.UsedPercent

	du, err := s.getDiskUsage(ctx, s.diskPath)
	if err != nil {
		return out, fmt.Errorf("%w: disk %s: %v", ErrSample, s.diskPath, err)
	}
	if du.Total == 0 {
		return out, fmt.Errorf("%w: disk %s reports zero size", ErrSample, s.diskPath)
	}
	out.DiskPercent = round2(float64(du.Used) / float64(du.Total) * 100)

	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
