// Package cpuspec sizes the inference thread pool from the host CPU.
// Hybrid CPUs run inference on performance cores only; scheduling TFLite
// work onto efficiency cores slows every invoke down to their pace.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec describes the host CPU as far as thread sizing cares.
type CPUSpec struct {
	BrandName        string
	PhysicalCores    int
	LogicalCores     int
	PerformanceCores int // 0 when the CPU is not a known hybrid design
}

var (
	intelHybridRegex = regexp.MustCompile(`intel.*core.*i[3579]-(1[234])(\d)00`)
	intelUltraRegex  = regexp.MustCompile(`intel.*core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3})`)
	appleRegex       = regexp.MustCompile(`apple\s+(m[1-4])(?:\s+(pro|max|ultra))?`)
)

// intelHybridPCores maps the tier digit of 12th-14th gen desktop parts
// (i9-13900 -> "9") to their performance core count.
var intelHybridPCores = map[string]int{"9": 8, "7": 8, "6": 6, "5": 6, "4": 6, "1": 4}

var intelUltraPCores = map[string]int{"285": 8, "265": 8, "255": 8, "245": 6, "235": 6, "225": 4}

var applePCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 6, "m3 max": 12, "m3 ultra": 24,
	"m4": 4, "m4 pro": 10, "m4 max": 12,
}

// GetCPUSpec inspects the running CPU.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: PerformanceCores(cpuid.CPU.BrandName),
	}
}

// PerformanceCores returns the P-core count for known hybrid CPUs, else 0.
func PerformanceCores(brandName string) int {
	brand := strings.ToLower(brandName)

	if m := intelUltraRegex.FindStringSubmatch(brand); m != nil {
		return intelUltraPCores[m[2]]
	}
	if m := intelHybridRegex.FindStringSubmatch(brand); m != nil {
		return intelHybridPCores[m[2]]
	}
	if m := appleRegex.FindStringSubmatch(brand); m != nil {
		chip := m[1]
		if m[2] != "" {
			chip += " " + m[2]
		}
		return applePCores[chip]
	}
	return 0
}

// GetOptimalThreadCount returns the recommended inference thread count:
// P-cores on hybrid CPUs, else physical cores, else logical cores, capped
// at the CPUs visible to this process.
func (c CPUSpec) GetOptimalThreadCount() int {
	available := runtime.NumCPU()

	var recommended int
	switch {
	case c.PerformanceCores > 0:
		recommended = c.PerformanceCores
	case c.PhysicalCores > 0:
		recommended = c.PhysicalCores
	default:
		recommended = c.LogicalCores
	}

	if recommended <= 0 || recommended > available {
		return available
	}
	return recommended
}

// ThreadCount resolves a configured thread count. Zero means automatic;
// values above the visible CPU count are capped.
func ThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured <= 0 {
		return GetCPUSpec().GetOptimalThreadCount()
	}
	return min(configured, available)
}
