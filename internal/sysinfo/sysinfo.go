// Package sysinfo reports the host a training run executes on.
package sysinfo

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Info describes the host.
type Info struct {
	Hostname     string
	OS           string
	Platform     string
	GoVersion    string
	CPUBrand     string
	LogicalCPUs  int
	PhysicalCPUs int
	TotalMemory  uint64 // bytes
	AvailMemory  uint64 // bytes
	SIMD         []string
}

// simdFeatures are the vector extensions worth reporting for float32 kernels.
var simdFeatures = []struct {
	name string
	id   cpuid.FeatureID
}{
	{"SSE4.2", cpuid.SSE42},
	{"AVX", cpuid.AVX},
	{"AVX2", cpuid.AVX2},
	{"FMA3", cpuid.FMA3},
	{"AVX512F", cpuid.AVX512F},
	{"ASIMD", cpuid.ASIMD},
}

// Collect gathers host information. Probes that fail leave their fields
// zero; the error joins their failures.
func Collect(ctx context.Context) (Info, error) {
	info := Info{
		GoVersion: runtime.Version(),
		CPUBrand:  cpuid.CPU.BrandName,
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f.id) {
			info.SIMD = append(info.SIMD, f.name)
		}
	}

	var failed []string
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname, info.OS, info.Platform = h.Hostname, h.OS, h.Platform
	} else {
		failed = append(failed, "host: "+err.Error())
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.LogicalCPUs = n
	} else {
		info.LogicalCPUs = runtime.NumCPU()
		failed = append(failed, "logical cpus: "+err.Error())
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.PhysicalCPUs = n
	} else {
		failed = append(failed, "physical cpus: "+err.Error())
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemory, info.AvailMemory = vm.Total, vm.Available
	} else {
		failed = append(failed, "memory: "+err.Error())
	}

	if len(failed) > 0 {
		return info, fmt.Errorf("sysinfo: %s", strings.Join(failed, "; "))
	}
	return info, nil
}

// String formats the report on one line.
func (i Info) String() string {
	simd := "none"
	if len(i.SIMD) > 0 {
		simd = strings.Join(i.SIMD, ",")
	}
	return fmt.Sprintf("host=%s os=%s/%s go=%s cpu=%q cores=%d/%d mem=%s/%s simd=%s",
		i.Hostname, i.OS, i.Platform, i.GoVersion, i.CPUBrand,
		i.PhysicalCPUs, i.LogicalCPUs, formatBytes(i.AvailMemory), formatBytes(i.TotalMemory), simd)
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
