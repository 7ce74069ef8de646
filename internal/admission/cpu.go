// Package admission layers resource-based admission control in front of
// the bank/ledger logic. This is additive: it never changes the quota
// ledger's per-client semantics, only whether a new subscribe request is
// allowed to reach it at all.
package admission

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUMonitor samples process-visible CPU usage via gopsutil's
// cross-platform percentage (see DESIGN.md for why this skips
// cgroup-path detection).
type CPUMonitor struct {
	sample time.Duration
}

// NewCPUMonitor returns a monitor that samples over the given window.
func NewCPUMonitor(sample time.Duration) *CPUMonitor {
	return &CPUMonitor{sample: sample}
}

// Percent returns the current CPU usage percentage (0-100) averaged
// across all cores.
func (m *CPUMonitor) Percent() (float64, error) {
	percents, err := cpu.Percent(m.sample, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}
