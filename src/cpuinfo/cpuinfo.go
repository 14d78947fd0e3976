// Package cpuinfo prints the one-line CPU identification banner the runner
// shows at startup (original_source/lcs35.c's raw CPUID-based banner),
// reimplemented on top of a portable CPU-feature library rather than
// hand-rolled assembly.
package cpuinfo

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"
)

// Banner returns a one-line description of the host CPU: brand string and
// physical/logical core counts, e.g.
// "Intel(R) Xeon(R) Platinum 8375C CPU @ 2.90GHz (16 physical, 32 logical cores)".
func Banner() string {
	return fmt.Sprintf("%s (%d physical, %d logical cores)",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
}

// SupportsADX reports whether the host can use the MULX/ADX instruction
// pair, which the fastest big-integer squaring implementations (and GMP
// builds tuned for this exact puzzle on the original hardware) single out
// for a dedicated code path. math/big selects its own assembly kernels
// internally; this is surfaced only for the startup banner and diagnostics.
func SupportsADX() bool {
	return cpuid.CPU.Supports(cpuid.ADX, cpuid.BMI2)
}
