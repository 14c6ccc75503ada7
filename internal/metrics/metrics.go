package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthwatch_checks_total",
		Help: "Checks performed, by check kind and outcome",
	}, []string{"check", "result"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthwatch_alerts_total",
		Help: "Alert deliveries, by outcome",
	}, []string{"result"})

	LastRun = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "healthwatch_last_run_timestamp_seconds",
		Help: "Unix time of the last completed pass, by job",
	}, []string{"job"})
)

// Check outcome labels.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

func Observe(check string, ok bool) {
	result := ResultOK
	if !ok {
		result = ResultFailed
	}
	ChecksTotal.WithLabelValues(check, result).Inc()
}
