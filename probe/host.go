package probe

import (
	"github.com/klauspost/cpuid/v2"
)

// HostInfo describes the CPU a run was measured on.
type HostInfo struct {
	CPU          string `json:"cpu"`
	Vendor       string `json:"vendor"`
	LogicalCores int    `json:"logical_cores"`
	Hz           int64  `json:"hz"`
}

// Host reports the current machine's CPU as detected by cpuid.
func Host() HostInfo {
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = "unknown"
	}

	return HostInfo{
		CPU:          brand,
		Vendor:       cpuid.CPU.VendorString,
		LogicalCores: cpuid.CPU.LogicalCores,
		Hz:           cpuid.CPU.Hz,
	}
}
