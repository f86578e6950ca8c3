// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSent   = "sent"
	ResultFailed = "failed"

	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_total",
			Help: "Messages attempted by campaign runs, by result",
		},
		[]string{"result"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_runs_total",
			Help: "Campaign runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_run_duration_seconds",
			Help:    "Wall time of a campaign run from start to finalization",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campaign_runs_active",
			Help: "Campaign runs currently dispatching",
		},
	)
)

func RecordMessage(ok bool) {
	if ok {
		MessagesTotal.WithLabelValues(ResultSent).Inc()
		return
	}
	MessagesTotal.WithLabelValues(ResultFailed).Inc()
}

func RecordRun(outcome string, seconds float64) {
	RunsTotal.WithLabelValues(outcome).Inc()
	if seconds >= 0 {
		RunDuration.Observe(seconds)
	}
}
