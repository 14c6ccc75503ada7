package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"go-healthwatch/internal/alert"
	"go-healthwatch/internal/metrics"
	"go-healthwatch/internal/models"
	"go-healthwatch/internal/probe"
	"go-healthwatch/internal/threshold"
)

type Sampler interface {
	Sample(ctx context.Context) (probe.Sample, error)
}

type SystemMonitor struct {
	sampler    Sampler
	store      StatusWriter
	notifier   Notifier
	thresholds models.Thresholds
	project    string
	server     string
	log        *log.Logger

	now func() time.Time
}

func NewSystemMonitor(s Sampler, w StatusWriter, n Notifier, t models.Thresholds, project, server string, logger *log.Logger) *SystemMonitor {
	return &SystemMonitor{
		sampler:    s,
		store:      w,
		notifier:   n,
		thresholds: t,
		project:    project,
		server:     server,
		log:        logger.WithPrefix("system"),
		now:        time.Now,
	}
}

// Check samples the host, alerts on every metric at or over its ceiling and
// persists the raw percentages. ok is false when sampling failed.
func (m *SystemMonitor) Check(ctx context.Context) (row models.ServerHealth, ok bool) {
	sample, err := m.sampler.Sample(ctx)
	metrics.Observe("system", err == nil)
	if err != nil {
		m.log.Error("could not sample system health", "err", err)
		m.notifier.Notify(ctx, alert.SamplingFailed(m.server, err))
		return row, false
	}

	row = models.ServerHealth{
		ProjectName:   m.project,
		ServerName:    m.server,
		CPUPercent:    sample.CPUPercent,
		MemoryPercent: sample.MemoryPercent,
		DiskPercent:   sample.DiskPercent,
		CheckedAt:     m.now(),
	}

	for _, d := range threshold.CheckServer(row, m.thresholds) {
		if d.Exceeded {
			m.log.Warn("usage is high", "metric", d.Metric, "percent", d.Value, "max", d.Max)
			m.notifier.Notify(ctx, alert.HighUsage(d, m.server, m.project))
		} else {
			m.log.Info("usage is normal", "metric", d.Metric, "percent", d.Value)
		}
	}

	if err := m.store.InsertServerHealth(ctx, row); err != nil {
		m.log.Error("could not persist server health", "err", err)
	} else {
		m.log.Info("server health persisted")
	}
	return row, true
}
