package utils

import "github.com/shirou/gopsutil/cpu"

// CheckCPUUsage reports whether host CPU usage is at or below maxCPUUsage.
// A non-positive limit disables the check.
func CheckCPUUsage(maxCPUUsage float64) (bool, float64) {
	usage, err := CPUUsage()
	if err != nil {
		return maxCPUUsage <= 0, 0
	}
	if maxCPUUsage <= 0 {
		return true, usage
	}
	return usage <= maxCPUUsage, usage
}

func CPUUsage() (float64, error) {
	usage, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(usage) == 0 {
		return 0, nil
	}
	return usage[0], nil
}
