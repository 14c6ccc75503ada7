// Package threshold classifies metric values against the alert policy.
package threshold

import "go-healthwatch/internal/models"

const (
	MetricCPU    = "CPU"
	MetricMemory = "Memory"
	MetricDisk   = "Disk"
)

type Decision struct {
	Metric   string
	Value    float64
	Max      float64
	Exceeded bool
}

// Evaluate reports whether value reaches max. The boundary itself counts as exceeded.
func Evaluate(metric string, value, max float64) Decision {
	return Decision{Metric: metric, Value: value, Max: max, Exceeded: value >= max}
}

// ExpiringSoon is true for any days count below warnDays, including DaysUnknown.
func ExpiringSoon(daysLeft, warnDays int) bool {
	return daysLeft < warnDays
}

// CheckServer evaluates CPU, memory and disk in that order.
func CheckServer(row models.ServerHealth, t models.Thresholds) []Decision {
	return []Decision{
		Evaluate(MetricCPU, row.CPUPercent, t.CPUMax),
		Evaluate(MetricMemory, row.MemoryPercent, t.MemoryMax),
		Evaluate(MetricDisk, row.DiskPercent, t.DiskMax),
	}
}

// Exceeded filters decisions down to the ones over their ceiling.
func Exceeded(ds []Decision) []Decision {
	var out []Decision
	for _, d := range ds {
		if d.Exceeded {
			out = append(out, d)
		}
	}
	return out
}
